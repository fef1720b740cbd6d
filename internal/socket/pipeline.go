package socket

import "github.com/hhenrich/zmqbridge/internal/engine"

// Pipeline wraps sock's In/Out with transform, the channel-based analogue
// of a transducer: every outbound message is passed through transform
// before reaching the socket, every inbound message is passed through
// transform before reaching the caller. The returned Socket shares sock's
// underlying registration; closing it closes sock as well.
func Pipeline(sock *Socket, transform func(engine.Frames) engine.Frames) *Socket {
	in := make(chan engine.Frames)
	out := make(chan engine.Frames, cap(sock.Out))

	go func() {
		for v := range in {
			select {
			case sock.In <- transform(v):
			default:
				log.Warnf("socket %s: pipeline dropped outbound message, buffer full", sock.id)
			}
		}
		close(sock.In)
	}()

	go func() {
		for v := range sock.Out {
			select {
			case out <- transform(v):
			default:
				log.Warnf("socket %s: pipeline dropped inbound message, buffer full", sock.id)
			}
		}
		close(out)
	}()

	return &Socket{
		id:     sock.id,
		kind:   sock.kind,
		ctx:    sock.ctx,
		In:     in,
		Out:    out,
		CtlIn:  sock.CtlIn,
		CtlOut: sock.CtlOut,
	}
}
