// Package engine implements the two-goroutine bridge between zmq4 sockets
// and Go channels: a poller goroutine that exclusively owns every native
// socket, and an injector goroutine that exclusively owns the read side of
// every user-supplied input channel. See Context for the public surface.
package engine

import "github.com/go-zeromq/zmq4"

// Frames is an ordered sequence of message parts exchanged with a socket.
// A single-frame message is a one-element Frames.
type Frames [][]byte

// NilSentinel is delivered on a socket's CtlOut channel when a user
// closure legitimately returned no value, so the blocking Command caller
// still unblocks with a distinguishable "no error, no value" response.
type NilSentinel struct{}

// outChans is the poller's half of a registered socket's channel set: the
// write side of Out and CtlOut.
type outChans struct {
	out    chan Frames
	ctlOut chan any
}

// inChans is the injector's half of a registered socket's channel set: the
// read side of In and CtlIn.
type inChans struct {
	in    chan Frames
	ctlIn chan any
}

type cmdKind int

const (
	cmdRegister cmdKind = iota
	cmdClose
	cmdInvoke
	cmdSend
)

// command is the tagged union the injector appends to the command queue
// and the poller drains and dispatches. Only the fields relevant to kind
// are populated.
type command struct {
	kind cmdKind
	id   string

	// cmdRegister
	sock   zmq4.Socket
	out    chan Frames
	ctlOut chan any

	// cmdInvoke
	fn func(zmq4.Socket) (any, error)

	// cmdSend
	frames Frames
}

// registerReq is what Context.Register sends on the control channel to
// ask the injector to register a freshly constructed native socket.
type registerReq struct {
	kind   string
	sock   zmq4.Socket
	in     chan Frames
	out    chan Frames
	ctlIn  chan any
	ctlOut chan any
	idOut  chan<- string
}
