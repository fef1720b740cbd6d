package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/go-zeromq/zmq4"
)

func TestContextCloseIdempotent(t *testing.T) {
	c := NewContext()
	c.Start()

	if !c.Close() {
		t.Fatal("first Close should return true")
	}
	if c.Close() {
		t.Fatal("second Close should return false")
	}
	if !c.Terminated() {
		t.Fatal("Terminated should be true after Close")
	}
}

func TestContextCloseWithoutStart(t *testing.T) {
	c := NewContext()
	if !c.Close() {
		t.Fatal("Close on a never-started context should still succeed")
	}
}

func TestContextStartIdempotent(t *testing.T) {
	c := NewContext()
	defer c.Close()

	if !c.Start() {
		t.Fatal("first Start should return true")
	}
	if c.Start() {
		t.Fatal("second Start should return false")
	}
}

// TestRegisterCloseRace hammers Register concurrently with a Close that can
// land between Register's closed.Load() check and its send on ctlChan. A
// Register caught by that window must see ErrContextTerminated, never a
// panic from sending on the channel Close just closed.
func TestRegisterCloseRace(t *testing.T) {
	for i := 0; i < 200; i++ {
		c := NewContext()
		c.Start()

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Register panicked instead of returning ErrContextTerminated: %v", r)
				}
			}()
			sock := zmq4.NewPair(context.Background())
			defer sock.Close()
			if _, err := c.Register("pair", sock); err != nil && err != ErrContextTerminated {
				t.Errorf("unexpected Register error: %v", err)
			}
		}()

		go func() {
			defer wg.Done()
			c.Close()
		}()

		wg.Wait()
	}
}
