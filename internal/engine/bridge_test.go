package engine_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hhenrich/zmqbridge/internal/engine"
	"github.com/hhenrich/zmqbridge/internal/socket"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReqRepRoundTrip(t *testing.T) {
	bridge := engine.NewContext()
	bridge.Start()
	defer bridge.Close()

	const addr = "inproc://engine-test-reqrep"
	rep, err := socket.New(socket.Rep, socket.WithContext(bridge), socket.WithBind(addr))
	require.NoError(t, err)
	req, err := socket.New(socket.Req, socket.WithContext(bridge), socket.WithConnect(addr))
	require.NoError(t, err)

	const n = 1000
	go func() {
		for i := 0; i < n; i++ {
			msg := socket.Recv(rep)
			if msg == nil {
				return
			}
			socket.Send(rep, msg)
		}
	}()

	for i := 0; i < n; i++ {
		want := fmt.Sprintf("ping-%d", i)
		socket.Send(req, want)
		got := socket.Recv(req)
		require.NotNil(t, got)
		assert.Equal(t, want, string(got[0]))
	}

	socket.Close(req)
	socket.Close(rep)
}

func TestMultipartIntegrity(t *testing.T) {
	bridge := engine.NewContext()
	bridge.Start()
	defer bridge.Close()

	const addr = "inproc://engine-test-multipart"
	pull, err := socket.New(socket.Pull, socket.WithContext(bridge), socket.WithBind(addr))
	require.NoError(t, err)
	push, err := socket.New(socket.Push, socket.WithContext(bridge), socket.WithConnect(addr))
	require.NoError(t, err)

	want := [][]byte{[]byte("header"), []byte(""), []byte("body")}
	socket.Send(push, want)

	got := socket.Recv(pull)
	require.NotNil(t, got)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i], []byte(got[i]))
	}

	socket.Close(push)
	socket.Close(pull)
}

func TestCommandRoundTrip(t *testing.T) {
	bridge := engine.NewContext()
	bridge.Start()
	defer bridge.Close()

	pair, err := socket.New(socket.Pair, socket.WithContext(bridge), socket.WithBind("inproc://engine-test-command"))
	require.NoError(t, err)

	v, err := socket.Command(pair, func(sock zmq4.Socket) (any, error) {
		return sock.Type().String(), nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, v)

	v, err = socket.Command(pair, func(zmq4.Socket) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, v)

	socket.Close(pair)

	_, err = socket.Command(pair, func(zmq4.Socket) (any, error) {
		return "unreachable", nil
	})
	assert.ErrorIs(t, err, engine.ErrSocketClosed)
}

func TestPerSocketOrdering(t *testing.T) {
	bridge := engine.NewContext()
	bridge.Start()
	defer bridge.Close()

	const addr = "inproc://engine-test-ordering"
	pull, err := socket.New(socket.Pull, socket.WithContext(bridge), socket.WithBind(addr))
	require.NoError(t, err)
	push, err := socket.New(socket.Push, socket.WithContext(bridge), socket.WithConnect(addr))
	require.NoError(t, err)

	const n = 500
	go func() {
		for i := 0; i < n; i++ {
			socket.Send(push, fmt.Sprintf("%d", i))
		}
	}()

	for i := 0; i < n; i++ {
		got := socket.Recv(pull)
		require.NotNil(t, got)
		assert.Equal(t, fmt.Sprintf("%d", i), string(got[0]))
	}

	socket.Close(push)
	socket.Close(pull)
}

// TestNoDeadlockUnderLoad drives many sockets concurrently through send,
// recv and command traffic, then tears the whole context down, failing if
// shutdown does not complete well within the default test timeout.
func TestNoDeadlockUnderLoad(t *testing.T) {
	bridge := engine.NewContext()
	bridge.Start()

	const nPairs = 20
	var wg sync.WaitGroup

	for i := 0; i < nPairs; i++ {
		addr := fmt.Sprintf("inproc://engine-test-load-%d", i)
		pull, err := socket.New(socket.Pull, socket.WithContext(bridge), socket.WithBind(addr))
		require.NoError(t, err)
		push, err := socket.New(socket.Push, socket.WithContext(bridge), socket.WithConnect(addr))
		require.NoError(t, err)

		wg.Add(2)
		stop := make(chan struct{})
		go func(p *socket.Socket) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					socket.Send(p, "load")
				}
			}
		}(push)
		go func(p *socket.Socket) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, _ = socket.Command(p, func(sock zmq4.Socket) (any, error) {
						return nil, nil
					})
				}
			}
		}(pull)

		time.AfterFunc(50*time.Millisecond, func() { close(stop) })
	}

	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		bridge.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("context close deadlocked under load")
	}

	wg.Wait()
}

// TestDeadlockSeeker runs a REQ/REP ping loop, a PUB broadcast loop, 10 SUBs
// timestamping every receipt, and an open-then-terminate churn loop all
// concurrently for 2s against one Context. It fails if the context never
// finishes closing, and if any still-open SUB's last receipt trails "now"
// by more than the staleness budget, which would mean the poller stalled
// feeding it well before shutdown.
func TestDeadlockSeeker(t *testing.T) {
	if testing.Short() {
		t.Skip("soak test, skipped under -short")
	}

	bridge := engine.NewContext()
	bridge.Start()

	const runFor = 2 * time.Second
	const staleBudget = 400 * time.Millisecond

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// REQ/REP ping loop.
	const reqrepAddr = "inproc://engine-test-seeker-reqrep"
	rep, err := socket.New(socket.Rep, socket.WithContext(bridge), socket.WithBind(reqrepAddr))
	require.NoError(t, err)
	req, err := socket.New(socket.Req, socket.WithContext(bridge), socket.WithConnect(reqrepAddr))
	require.NoError(t, err)

	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case msg, ok := <-rep.Out:
				if !ok {
					return
				}
				socket.Send(rep, msg)
			case <-stop:
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			socket.Send(req, fmt.Sprintf("ping-%d", i))
			select {
			case <-req.Out:
			case <-stop:
				return
			}
		}
	}()

	// PUB broadcast loop feeding 10 timestamping SUBs.
	const pubAddr = "inproc://engine-test-seeker-pubsub"
	pub, err := socket.New(socket.Pub, socket.WithContext(bridge), socket.WithBind(pubAddr))
	require.NoError(t, err)

	const nsub = 10
	lastRecv := make([]atomic.Value, nsub)
	for i := range lastRecv {
		sub, err := socket.New(socket.Sub,
			socket.WithContext(bridge),
			socket.WithConnect(pubAddr),
			socket.WithSubscribe(""),
		)
		require.NoError(t, err)

		wg.Add(1)
		go func(i int, sub *socket.Socket) {
			defer wg.Done()
			defer socket.Close(sub)
			for {
				select {
				case msg, ok := <-sub.Out:
					if !ok {
						return
					}
					_ = msg
					lastRecv[i].Store(time.Now())
				case <-stop:
					return
				}
			}
		}(i, sub)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				socket.Send(pub, "tick")
				time.Sleep(time.Millisecond)
			}
		}
	}()

	// Open-then-terminate churn loop: create and immediately tear down SUBs.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			sub, err := socket.New(socket.Sub, socket.WithContext(bridge), socket.WithConnect(pubAddr))
			if err != nil {
				return
			}
			socket.Close(sub)
		}
	}()

	time.Sleep(runFor)
	close(stop)
	wg.Wait()

	now := time.Now()
	for i := range lastRecv {
		v := lastRecv[i].Load()
		require.NotNilf(t, v, "sub %d never received anything", i)
		assert.WithinDurationf(t, now, v.(time.Time), staleBudget, "sub %d's last receipt is stale", i)
	}

	socket.Close(req)
	socket.Close(rep)
	socket.Close(pub)

	closed := make(chan struct{})
	go func() {
		bridge.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("context close deadlocked after seeker load")
	}
}
