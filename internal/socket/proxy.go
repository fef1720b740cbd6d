package socket

import "sync"

// Proxy pipes front's inbound messages into back and back's inbound
// messages into front, the channel equivalent of zmq_proxy — typically
// used to wire an XSUB frontend to an XPUB backend. The returned stop
// function halts both forwarders; it does not close or otherwise affect
// the underlying sockets.
func Proxy(front, back *Socket) (stop func()) {
	done := make(chan struct{})
	var once sync.Once

	go forward(front, back, done)
	go forward(back, front, done)

	return func() {
		once.Do(func() { close(done) })
	}
}

func forward(from, to *Socket, done chan struct{}) {
	for {
		select {
		case v, ok := <-from.Out:
			if !ok {
				return
			}
			select {
			case to.In <- v:
			case <-done:
				return
			}
		case <-done:
			return
		}
	}
}
