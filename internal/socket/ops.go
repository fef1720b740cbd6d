package socket

import (
	"fmt"

	"github.com/go-zeromq/zmq4"

	"github.com/hhenrich/zmqbridge/internal/engine"
)

// Send enqueues msg for delivery without blocking; if the socket's input
// buffer is full (or the socket has been closed) the message is dropped.
// msg may be a single frame (string or []byte) or a multipart sequence
// ([]string, [][]byte or engine.Frames).
func Send(s *Socket, msg any) {
	frames := toFrames(msg)
	defer func() {
		if r := recover(); r != nil {
			log.Debugf("socket %s: send on closed socket ignored", s.id)
		}
	}()
	select {
	case s.In <- frames:
	default:
		log.Warnf("socket %s: in buffer full, dropping send", s.id)
	}
}

func toFrames(msg any) engine.Frames {
	switch v := msg.(type) {
	case engine.Frames:
		return v
	case [][]byte:
		return engine.Frames(v)
	case []byte:
		return engine.Frames{v}
	case string:
		return engine.Frames{[]byte(v)}
	case []string:
		f := make(engine.Frames, len(v))
		for i, part := range v {
			f[i] = []byte(part)
		}
		return f
	default:
		panic(fmt.Sprintf("socket: unsupported message type %T", msg))
	}
}

// Recv blocks until a message arrives or the socket is closed, in which
// case it returns nil.
func Recv(s *Socket) engine.Frames {
	v, ok := <-s.Out
	if !ok {
		return nil
	}
	return v
}

// TryRecv returns the next buffered message without blocking, or nil if
// none is available (whether because nothing has arrived yet, or because
// the socket is closed).
func TryRecv(s *Socket) engine.Frames {
	select {
	case v, ok := <-s.Out:
		if !ok {
			return nil
		}
		return v
	default:
		return nil
	}
}

// Command runs fn against the socket's native zmq4.Socket on the poller
// goroutine and blocks for the result. A nil, nil return from fn becomes a
// nil, nil return from Command; a closed socket becomes ErrSocketClosed.
func Command(s *Socket, fn func(zmq4.Socket) (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("%w: %s", engine.ErrSocketClosed, s.id)
		}
	}()

	s.CtlIn <- fn

	resp, ok := <-s.CtlOut
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrSocketClosed, s.id)
	}
	switch r := resp.(type) {
	case engine.NilSentinel:
		return nil, nil
	case error:
		return nil, r
	default:
		return r, nil
	}
}

var noop = func(zmq4.Socket) (any, error) { return nil, nil }

// Terminated reports whether the socket handle is no longer usable, by
// probing CtlIn with a no-op closure.
func Terminated(s *Socket) (dead bool) {
	defer func() {
		if r := recover(); r != nil {
			dead = true
		}
	}()
	select {
	case s.CtlIn <- noop:
	default:
		return true
	}
	_, ok := <-s.CtlOut
	return !ok
}

// Close tears down the socket: closing In triggers the injector's teardown
// path, which closes the native socket and the remaining channels. It is
// idempotent; the second and later calls return false.
func Close(s *Socket) (closed bool) {
	defer func() {
		if r := recover(); r != nil {
			closed = false
		}
	}()
	close(s.In)
	return true
}

// Bind listens on addr from the socket's owning goroutine.
func Bind(s *Socket, addr string) error {
	_, err := Command(s, func(sock zmq4.Socket) (any, error) {
		return nil, sock.Listen(addr)
	})
	return err
}

// Connect dials addr from the socket's owning goroutine.
func Connect(s *Socket, addr string) error {
	_, err := Command(s, func(sock zmq4.Socket) (any, error) {
		return nil, sock.Dial(addr)
	})
	return err
}

// Unbind stops listening on addr, if the underlying zmq4 binding supports
// it.
func Unbind(s *Socket, addr string) error {
	_, err := Command(s, func(sock zmq4.Socket) (any, error) {
		if u, ok := sock.(interface{ Unlisten(string) error }); ok {
			return nil, u.Unlisten(addr)
		}
		return nil, fmt.Errorf("socket: unbind not supported by this zmq4 binding")
	})
	return err
}

// Disconnect stops an outbound connection to addr, if the underlying zmq4
// binding supports it.
func Disconnect(s *Socket, addr string) error {
	_, err := Command(s, func(sock zmq4.Socket) (any, error) {
		if d, ok := sock.(interface{ Undial(string) error }); ok {
			return nil, d.Undial(addr)
		}
		return nil, fmt.Errorf("socket: disconnect not supported by this zmq4 binding")
	})
	return err
}

// Subscribe adds a SUB-socket topic filter at runtime.
func Subscribe(s *Socket, topic string) error {
	_, err := Command(s, func(sock zmq4.Socket) (any, error) {
		return nil, sock.SetOption(zmq4.OptionSubscribe, topic)
	})
	return err
}

// Unsubscribe removes a SUB-socket topic filter at runtime.
func Unsubscribe(s *Socket, topic string) error {
	_, err := Command(s, func(sock zmq4.Socket) (any, error) {
		return nil, sock.SetOption(zmq4.OptionUnsubscribe, topic)
	})
	return err
}

// SetOption sets an arbitrary native socket option at runtime.
func SetOption(s *Socket, name string, value any) error {
	_, err := Command(s, func(sock zmq4.Socket) (any, error) {
		return nil, sock.SetOption(name, value)
	})
	return err
}
