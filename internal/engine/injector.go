package engine

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"
)

// ctlSockID is the reserved id under which the Context's registration/
// shutdown control channel sits in the injector's own channel map.
const ctlSockID = "__ctl__"

type caseKind int

const (
	kindCtl caseKind = iota
	kindIn
	kindCtlIn
)

type caseInfo struct {
	id   string
	kind caseKind
}

// injector is the single owner of the read side of every registered
// socket's In and CtlIn channels, plus the Context's registration channel.
// It lives entirely on its own goroutine.
type injector struct {
	c     *Context
	chans map[string]inChans
	idSeq uint64
}

func newInjector(c *Context) *injector {
	return &injector{
		c:     c,
		chans: map[string]inChans{ctlSockID: {in: c.ctlChan}},
	}
}

func (i *injector) run() {
	defer close(i.c.injectorTerm)

	for {
		infos, cases := i.buildCases()
		chosen, recv, ok := reflect.Select(cases)
		info := infos[chosen]

		switch info.kind {
		case kindCtl:
			if !ok {
				i.shutdown()
				return
			}
			i.handleCtl(recv.Interface())

		case kindIn:
			if !ok {
				i.teardown(info.id)
				continue
			}
			frames, _ := recv.Interface().(Frames)
			i.c.queue.push(command{kind: cmdSend, id: info.id, frames: frames})
			i.signal()

		case kindCtlIn:
			if !ok {
				// ctlIn never closes on its own; teardown always starts
				// from In closing. Ignore a stray case.
				continue
			}
			fn, isFn := recv.Interface().(func(zmq4.Socket) (any, error))
			if !isFn {
				panic(fmt.Sprintf("engine: invalid control message on %s, invariant breach", info.id))
			}
			i.c.queue.push(command{kind: cmdInvoke, id: info.id, fn: fn})
			i.signal()
		}
	}
}

func (i *injector) buildCases() ([]caseInfo, []reflect.SelectCase) {
	infos := make([]caseInfo, 0, len(i.chans)*2)
	cases := make([]reflect.SelectCase, 0, len(i.chans)*2)

	for id, ic := range i.chans {
		if id == ctlSockID {
			infos = append(infos, caseInfo{id: id, kind: kindCtl})
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ic.in)})
			continue
		}
		infos = append(infos, caseInfo{id: id, kind: kindIn})
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ic.in)})

		infos = append(infos, caseInfo{id: id, kind: kindCtlIn})
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ic.ctlIn)})
	}
	return infos, cases
}

func (i *injector) handleCtl(v any) {
	req, ok := v.(registerReq)
	if !ok {
		panic("engine: invalid message on control channel, invariant breach")
	}

	n := atomic.AddUint64(&i.idSeq, 1)
	id := fmt.Sprintf("inj-%s-%d", req.kind, n)

	i.chans[id] = inChans{in: req.in, ctlIn: req.ctlIn}

	i.c.queue.push(command{kind: cmdRegister, id: id, sock: req.sock, out: req.out, ctlOut: req.ctlOut})
	i.signal()

	req.idOut <- id
}

func (i *injector) signal() {
	if err := i.c.sig.send(sigMessage); err != nil {
		injectorLog.Errorf("signal send failed: %v", err)
	}
}

// teardown runs when a socket's In channel closes (the user called Close):
// it stops waiting on that socket's CtlIn, removes the socket from the
// injector's own bookkeeping, and asks the poller to close the native
// socket and the remaining two channels.
func (i *injector) teardown(id string) {
	ic, ok := i.chans[id]
	if !ok {
		return
	}
	close(ic.ctlIn)
	delete(i.chans, id)

	i.c.queue.push(command{kind: cmdClose, id: id})
	i.signal()
}

// shutdown runs when the Context's control channel closes (Close was
// called): it closes every remaining socket's In and CtlIn, then signals
// the poller to do the same for Out/CtlOut and stop.
func (i *injector) shutdown() {
	for id, ic := range i.chans {
		if id == ctlSockID {
			continue
		}
		close(ic.in)
		close(ic.ctlIn)
	}
	if err := i.c.sig.send(sigShutdown); err != nil {
		injectorLog.Errorf("shutdown signal send failed: %v", err)
	}
}
