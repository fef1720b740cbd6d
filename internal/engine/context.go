package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"
)

// defaultOutBuf is the capacity Register gives every socket's Out channel.
// It sizes the "read-ahead" the poller may do before
// a consumer is ready to Recv.
const defaultOutBuf = 1000

var contextCounter uint64

// Hook is a lightweight diagnostic callback invoked by the poller on
// socket register, close and error events. It must not block and must not call
// back into the Context it was registered on.
type Hook func(kind, id, detail string)

// Context owns one signaling pair, one command queue, and the poller and
// injector goroutines that bridge a set of zmq4 sockets to Go channels.
// The zero value is not usable; construct one with NewContext.
type Context struct {
	id     string
	goCtx  context.Context
	cancel context.CancelFunc

	startMu sync.Mutex
	started bool

	sig   *signalPair
	queue *cmdQueue

	ctlChan chan any

	injectorTerm chan struct{}
	pollerTerm   chan []zmq4.Socket

	closed atomic.Bool

	hookMu sync.RWMutex
	hook   Hook
}

// NewContext allocates a Context. Call Start (or let Register do it
// lazily) before using it.
func NewContext() *Context {
	id := fmt.Sprintf("%d", atomic.AddUint64(&contextCounter, 1))
	goCtx, cancel := context.WithCancel(context.Background())
	return &Context{
		id:           id,
		goCtx:        goCtx,
		cancel:       cancel,
		ctlChan:      make(chan any),
		injectorTerm: make(chan struct{}),
		pollerTerm:   make(chan []zmq4.Socket, 1),
		queue:        newCmdQueue(),
	}
}

var (
	defaultOnce sync.Once
	defaultCtx  *Context
)

// Default returns the process-wide default Context, creating and starting
// it on first use. It is intentionally never closed by the library itself.
func Default() *Context {
	defaultOnce.Do(func() {
		defaultCtx = NewContext()
		defaultCtx.Start()
	})
	return defaultCtx
}

// GoContext returns the context.Context passed to every zmq4 socket this
// Context constructs. Cancelling it happens as part of Close.
func (c *Context) GoContext() context.Context {
	return c.goCtx
}

// SetHook installs a diagnostic callback. It may be called at any time: the
// hook is read under a lock for every event, and events emitted before it
// is installed are not delivered to it.
func (c *Context) SetHook(h Hook) {
	c.hookMu.Lock()
	c.hook = h
	c.hookMu.Unlock()
}

func (c *Context) emit(kind, id, detail string) {
	c.hookMu.RLock()
	h := c.hook
	c.hookMu.RUnlock()
	if h != nil {
		h(kind, id, detail)
	}
}

// Start spawns the poller and injector goroutines if they are not already
// running. It is idempotent and safe to call from multiple goroutines;
// only the first call does anything, and it reports whether it did.
func (c *Context) Start() bool {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return false
	}

	sig, err := newSignalPair(c.goCtx, c.id)
	if err != nil {
		// The signaling pair is inproc-only and backed by pure-Go queues;
		// failure here means the process is out of memory or goroutines,
		// not a recoverable per-call condition.
		panic(fmt.Errorf("engine: failed to create signaling pair: %w", err))
	}
	c.sig = sig
	c.started = true

	p := newPoller(c)
	i := newInjector(c)
	go p.run()
	go i.run()

	return true
}

// RegisteredSocket is what Register hands back to a freshly constructed
// native socket's owner (internal/socket), wiring it into the bridge.
type RegisteredSocket struct {
	ID     string
	In     chan<- Frames
	Out    <-chan Frames
	CtlIn  chan<- any
	CtlOut <-chan any
}

// Register hands sock to the bridge: the poller takes ownership of it and
// a fresh set of four channels is returned for the caller to expose as a
// socket handle. It starts the Context if this is the first call.
//
// Close closes ctlChan the moment it wins its own CAS, which is not
// mutually exclusive with Register's opening closed.Load() check: a Register that
// passes that check just before Close runs would otherwise panic sending
// on a closed channel. The recover here translates that race into the
// same ErrContextTerminated a slightly earlier Close would have produced.
func (c *Context) Register(kind string, sock zmq4.Socket) (rs *RegisteredSocket, err error) {
	if c.closed.Load() {
		return nil, ErrContextTerminated
	}
	c.Start()

	in := make(chan Frames)
	out := make(chan Frames, defaultOutBuf)
	ctlIn := make(chan any)
	ctlOut := make(chan any, 1)
	idOut := make(chan string, 1)

	req := registerReq{kind: kind, sock: sock, in: in, out: out, ctlIn: ctlIn, ctlOut: ctlOut, idOut: idOut}

	defer func() {
		if r := recover(); r != nil {
			rs, err = nil, ErrContextTerminated
		}
	}()

	select {
	case c.ctlChan <- req:
	case <-c.goCtx.Done():
		return nil, ErrContextTerminated
	}

	select {
	case id := <-idOut:
		return &RegisteredSocket{ID: id, In: in, Out: out, CtlIn: ctlIn, CtlOut: ctlOut}, nil
	case <-c.goCtx.Done():
		return nil, ErrContextTerminated
	}
}

// Close runs the shutdown barrier: it tells the injector to stop, waits for
// it to close every socket's input channels and signal the poller, waits
// for the poller to close every socket's output channels and hand back the
// native sockets it owned, then closes those sockets and the signaling
// pair. Repeated calls return false without effect after the first.
func (c *Context) Close() bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}

	c.startMu.Lock()
	started := c.started
	c.startMu.Unlock()
	if !started {
		c.cancel()
		return true
	}

	close(c.ctlChan)
	<-c.injectorTerm
	owned := <-c.pollerTerm
	for _, s := range owned {
		_ = s.Close()
	}
	c.sig.close()
	c.cancel()
	return true
}

// Terminated reports whether Close has completed.
func (c *Context) Terminated() bool {
	// goCtx is cancelled only as the last step of Close, after both
	// goroutines have exited.
	return c.goCtx.Err() != nil
}
