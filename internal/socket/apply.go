package socket

import (
	"fmt"

	"github.com/go-zeromq/zmq4"
)

// applyOptions sets every socketConfig field that maps to a native
// SetOption call. The pure-Go zmq4 binding this bridge is built on does not
// implement most of the ZMTP security and high-water-mark options that the
// C binding does; those are applied best-effort and logged at debug level
// rather than failing socket construction, since a caller targeting a
// different zmq4 binding may have them available. Subscribe is the one
// option that must succeed, since a SUB socket is useless without it.
func applyOptions(sock zmq4.Socket, cfg socketConfig) error {
	trySet := func(name string, value any) {
		if err := sock.SetOption(name, value); err != nil {
			log.Debugf("socket option %s not supported by this zmq4 binding: %v", name, err)
		}
	}

	if cfg.plainServer {
		trySet("PLAIN-SERVER", cfg.plainServer)
	}
	if cfg.plainUser != "" {
		trySet("PLAIN-USERNAME", cfg.plainUser)
	}
	if cfg.plainPass != "" {
		trySet("PLAIN-PASSWORD", cfg.plainPass)
	}
	if cfg.zapDomain != "" {
		trySet("ZAP-DOMAIN", cfg.zapDomain)
	}
	if cfg.hasSendHWM {
		trySet("SNDHWM", cfg.sendHWM)
	}
	if cfg.hasRecvHWM {
		trySet("RCVHWM", cfg.recvHWM)
	}
	if cfg.reqRetry {
		trySet("REQ_RELAXED", true)
		trySet("REQ_CORRELATE", true)
	}

	for _, topic := range cfg.subscribe {
		if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			return fmt.Errorf("socket: subscribe %q: %w", topic, err)
		}
	}
	return nil
}
