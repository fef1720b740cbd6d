package engine

import (
	"fmt"
	"math/rand/v2"

	"github.com/go-zeromq/zmq4"
)

// injectSockID is the reserved id under which the signaling pair's PULL
// socket sits in the poller's own socket map, alongside every
// bridge-registered native socket.
const injectSockID = "__inject__"

// poller is the single owner of every native zmq4 socket registered with a
// Context. It lives entirely on its own goroutine; nothing else may touch
// the sockets or the maps below.
type poller struct {
	c     *Context
	socks map[string]zmq4.Socket
	chans map[string]outChans
}

func newPoller(c *Context) *poller {
	return &poller{
		c:     c,
		socks: map[string]zmq4.Socket{injectSockID: c.sig.pull},
		chans: make(map[string]outChans),
	}
}

func (p *poller) run() {
	defer func() {
		owned := make([]zmq4.Socket, 0, len(p.socks))
		for id, s := range p.socks {
			if id == injectSockID {
				continue
			}
			owned = append(owned, s)
		}
		p.c.pollerTerm <- owned
	}()

	for {
		zp := zmq4.NewPoller()
		for _, s := range p.socks {
			zp.Add(s, zmq4.PollIn)
		}

		items, err := zp.Poll(-1)
		if err != nil {
			pollerLog.Errorf("poll error: %v", err)
			continue
		}
		if len(items) == 0 {
			continue
		}

		// Pick a ready socket uniformly at random so no one registered
		// socket can starve the others under sustained load.
		pick := items[rand.IntN(len(items))]

		id, ok := p.idFor(pick.Socket)
		if !ok {
			pollerLog.Warnf("poll returned an unregistered socket, ignoring")
			continue
		}

		if id == injectSockID {
			if p.handleSignal() {
				return
			}
			continue
		}

		p.drainSocket(id, pick.Socket)
	}
}

func (p *poller) idFor(s zmq4.Socket) (string, bool) {
	for id, sock := range p.socks {
		if sock == s {
			return id, true
		}
	}
	return "", false
}

func (p *poller) handleSignal() (shutdown bool) {
	msg, err := p.socks[injectSockID].Recv()
	if err != nil {
		pollerLog.Errorf("signal recv error: %v", err)
		return false
	}
	if len(msg.Frames) == 0 || len(msg.Frames[0]) == 0 {
		panic("engine: empty signal frame, invariant breach")
	}

	switch signalTag(msg.Frames[0][0]) {
	case sigMessage:
		p.dispatch(p.c.queue.pop())
		return false
	case sigShutdown:
		for _, ch := range p.chans {
			close(ch.out)
			close(ch.ctlOut)
		}
		return true
	default:
		panic(fmt.Sprintf("engine: unknown signal tag %q, invariant breach", msg.Frames[0][0]))
	}
}

func (p *poller) dispatch(cmd command) {
	switch cmd.kind {
	case cmdRegister:
		p.socks[cmd.id] = cmd.sock
		p.chans[cmd.id] = outChans{out: cmd.out, ctlOut: cmd.ctlOut}
		p.c.emit("register", cmd.id, "")
	case cmdClose:
		if sock, ok := p.socks[cmd.id]; ok {
			_ = sock.Close()
			delete(p.socks, cmd.id)
		}
		if ch, ok := p.chans[cmd.id]; ok {
			close(ch.out)
			close(ch.ctlOut)
			delete(p.chans, cmd.id)
		}
		p.c.emit("close", cmd.id, "")
	case cmdInvoke:
		p.runInvoke(cmd)
	case cmdSend:
		p.runSend(cmd)
	default:
		panic(fmt.Sprintf("engine: unrecognized command kind %v, invariant breach", cmd.kind))
	}
}

func (p *poller) runInvoke(cmd command) {
	sock, ok := p.socks[cmd.id]
	if !ok {
		p.offerCtl(cmd.id, fmt.Errorf("%w: %s", ErrUnknownSocket, cmd.id))
		return
	}

	result, err := p.safeInvoke(sock, cmd.fn)
	switch {
	case err != nil:
		p.offerCtl(cmd.id, err)
	case result == nil:
		p.offerCtl(cmd.id, NilSentinel{})
	default:
		p.offerCtl(cmd.id, result)
	}
}

// safeInvoke recovers a panicking user closure so one bad command can never
// take the poller goroutine down with it.
func (p *poller) safeInvoke(sock zmq4.Socket, fn func(zmq4.Socket) (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine: command closure panicked: %v", r)
		}
	}()
	return fn(sock)
}

func (p *poller) offerCtl(id string, v any) {
	ch, ok := p.chans[id]
	if !ok {
		return
	}
	select {
	case ch.ctlOut <- v:
	default:
		pollerLog.Warnf("ctlOut full for %s, dropping response", id)
	}
}

func (p *poller) runSend(cmd command) {
	sock, ok := p.socks[cmd.id]
	if !ok {
		pollerLog.Warnf("send on unknown socket %s, dropping", cmd.id)
		return
	}
	if err := sock.Send(zmq4.NewMsgFrom(cmd.frames...)); err != nil {
		pollerLog.Warnf("send on %s failed, dropping: %v", cmd.id, err)
		p.c.emit("error", cmd.id, err.Error())
	}
}

func (p *poller) drainSocket(id string, sock zmq4.Socket) {
	msg, err := sock.Recv()
	if err != nil {
		pollerLog.Warnf("recv error on %s: %v", id, err)
		p.c.emit("error", id, err.Error())
		return
	}
	ch, ok := p.chans[id]
	if !ok {
		return
	}
	select {
	case ch.out <- Frames(msg.Frames):
	default:
		pollerLog.Warnf("out buffer full for %s, dropping message", id)
	}
}
