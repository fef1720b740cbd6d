// Package socket is the public handle layer over internal/engine: it turns
// a registered native zmq4 socket into a Socket{In, Out, CtlIn, CtlOut} and
// the functions that operate on it (Send, Recv, Command, Bind, ...).
package socket

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
	logging "github.com/ipfs/go-log/v2"

	"github.com/hhenrich/zmqbridge/internal/engine"
)

var log = logging.Logger("zmqbridge/socket")

// Kind identifies which zmq4 socket constructor New uses.
type Kind int

const (
	Pair Kind = iota
	Pub
	Sub
	Req
	Rep
	Dealer
	Router
	XPub
	XSub
	Pull
	Push
	Stream
)

func (k Kind) String() string {
	switch k {
	case Pair:
		return "pair"
	case Pub:
		return "pub"
	case Sub:
		return "sub"
	case Req:
		return "req"
	case Rep:
		return "rep"
	case Dealer:
		return "dealer"
	case Router:
		return "router"
	case XPub:
		return "xpub"
	case XSub:
		return "xsub"
	case Pull:
		return "pull"
	case Push:
		return "push"
	case Stream:
		return "stream"
	default:
		return "unknown"
	}
}

// Socket is the user-facing handle for one bridged zmq4 socket: four
// channels, plus enough identity to address it through Command.
type Socket struct {
	id   string
	kind Kind
	ctx  *engine.Context

	In     chan<- engine.Frames
	Out    <-chan engine.Frames
	CtlIn  chan<- any
	CtlOut <-chan any
}

// ID returns the bridge-assigned identifier for this socket.
func (s *Socket) ID() string { return s.id }

// Kind returns the zmq4 socket type this handle wraps.
func (s *Socket) Kind() Kind { return s.kind }

// New constructs a native zmq4 socket of the given kind, applies opts, and
// registers it with the configured (or default) Context.
func New(kind Kind, opts ...Option) (*Socket, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.ctx == nil {
		cfg.ctx = engine.Default()
	}

	var zopts []zmq4.Option
	if len(cfg.identity) > 0 {
		zopts = append(zopts, zmq4.WithID(zmq4.SocketIdentity(cfg.identity)))
	}

	sock := newNativeSocket(cfg.ctx.GoContext(), kind, zopts...)

	if err := applyOptions(sock, cfg); err != nil {
		_ = sock.Close()
		return nil, err
	}

	for _, addr := range cfg.bind {
		if err := sock.Listen(addr); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("socket: bind %s: %w", addr, err)
		}
	}
	for _, addr := range cfg.connect {
		if err := sock.Dial(addr); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("socket: connect %s: %w", addr, err)
		}
	}

	reg, err := cfg.ctx.Register(kind.String(), sock)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}

	s := &Socket{
		id:     reg.ID,
		kind:   kind,
		ctx:    cfg.ctx,
		In:     reg.In,
		Out:    reg.Out,
		CtlIn:  reg.CtlIn,
		CtlOut: reg.CtlOut,
	}

	if cfg.userIn != nil || cfg.userOut != nil {
		s.bridgeUserChannels(cfg.userIn, cfg.userOut)
	}

	log.Debugf("socket %s: created (bind=%v connect=%v)", s.id, cfg.bind, cfg.connect)
	return s, nil
}

func newNativeSocket(ctx context.Context, kind Kind, opts ...zmq4.Option) zmq4.Socket {
	switch kind {
	case Pair:
		return zmq4.NewPair(ctx, opts...)
	case Pub:
		return zmq4.NewPub(ctx, opts...)
	case Sub:
		return zmq4.NewSub(ctx, opts...)
	case Req:
		return zmq4.NewReq(ctx, opts...)
	case Rep:
		return zmq4.NewRep(ctx, opts...)
	case Dealer:
		return zmq4.NewDealer(ctx, opts...)
	case Router:
		return zmq4.NewRouter(ctx, opts...)
	case XPub:
		return zmq4.NewXPub(ctx, opts...)
	case XSub:
		return zmq4.NewXSub(ctx, opts...)
	case Pull:
		return zmq4.NewPull(ctx, opts...)
	case Push:
		return zmq4.NewPush(ctx, opts...)
	case Stream:
		return zmq4.NewStream(ctx, opts...)
	default:
		panic(fmt.Sprintf("socket: unknown kind %v", kind))
	}
}

// bridgeUserChannels replaces s.In/s.Out with caller-supplied channels,
// pumping values through the registered channels underneath. This is what
// lets a caller compose their own transform pipeline (see Pipeline) ahead
// of the bridge's own buffering.
func (s *Socket) bridgeUserChannels(userIn, userOut chan engine.Frames) {
	if userIn != nil {
		target := s.In
		go func() {
			for v := range userIn {
				target <- v
			}
			close(target)
		}()
		s.In = userIn
	}
	if userOut != nil {
		source := s.Out
		go func() {
			for v := range source {
				select {
				case userOut <- v:
				default:
					log.Warnf("socket %s: user-supplied out channel full, dropping message", s.id)
				}
			}
			close(userOut)
		}()
		s.Out = userOut
	}
}
