package engine

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
)

type signalTag byte

const (
	sigMessage  signalTag = 'm'
	sigShutdown signalTag = 's'
)

// signalPair is an inproc PUSH/PULL pair the injector uses to wake the
// poller out of its blocking Poll whenever it enqueues a command or wants
// to start the shutdown barrier. The poller registers the PULL side as an
// ordinary pollable socket, so waking it costs nothing beyond the normal
// poll dispatch path.
type signalPair struct {
	push zmq4.Socket
	pull zmq4.Socket
	addr string
}

func newSignalPair(ctx context.Context, id string) (*signalPair, error) {
	addr := fmt.Sprintf("inproc://zmqbridge-sig-%s", id)

	pull := zmq4.NewPull(ctx)
	if err := pull.Listen(addr); err != nil {
		return nil, fmt.Errorf("engine: bind signal pull socket: %w", err)
	}

	push := zmq4.NewPush(ctx)
	if err := push.Dial(addr); err != nil {
		_ = pull.Close()
		return nil, fmt.Errorf("engine: dial signal push socket: %w", err)
	}

	return &signalPair{push: push, pull: pull, addr: addr}, nil
}

func (p *signalPair) send(tag signalTag) error {
	return p.push.Send(zmq4.NewMsg([]byte{byte(tag)}))
}

func (p *signalPair) close() {
	_ = p.push.Close()
	_ = p.pull.Close()
}
