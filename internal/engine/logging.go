package engine

import logging "github.com/ipfs/go-log/v2"

var (
	log          = logging.Logger("zmqbridge/ctx")
	pollerLog    = logging.Logger("zmqbridge/poller")
	injectorLog  = logging.Logger("zmqbridge/injector")
)

// SetLogLevel adjusts the verbosity of one zmqbridge subsystem logger, e.g.
// SetLogLevel("poller", "debug"). Subsystems are "ctx", "poller",
// "injector", "socket", "config" and "monitor".
func SetLogLevel(subsystem, level string) error {
	return logging.SetLogLevel("zmqbridge/"+subsystem, level)
}
