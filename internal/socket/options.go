package socket

import "github.com/hhenrich/zmqbridge/internal/engine"

type socketConfig struct {
	ctx     *engine.Context
	bind    []string
	connect []string
	userIn  chan engine.Frames
	userOut chan engine.Frames

	identity    []byte
	plainServer bool
	plainUser   string
	plainPass   string
	zapDomain   string
	subscribe   []string
	reqRetry    bool

	sendHWM    int
	recvHWM    int
	hasSendHWM bool
	hasRecvHWM bool
}

func defaultConfig() socketConfig {
	return socketConfig{}
}

// Option configures a socket at construction time. See New.
type Option func(*socketConfig)

// WithBind adds one or more listen addresses.
func WithBind(addrs ...string) Option {
	return func(c *socketConfig) { c.bind = append(c.bind, addrs...) }
}

// WithConnect adds one or more dial addresses.
func WithConnect(addrs ...string) Option {
	return func(c *socketConfig) { c.connect = append(c.connect, addrs...) }
}

// WithContext registers the socket on a specific Context instead of the
// process-wide default.
func WithContext(ctx *engine.Context) Option {
	return func(c *socketConfig) { c.ctx = ctx }
}

// WithChannels replaces the socket's In/Out channels with caller-supplied
// ones, so a user-built transform pipeline can sit directly in front of the
// bridge's own buffering instead of behind it (see Pipeline for the
// opposite composition).
func WithChannels(in, out chan engine.Frames) Option {
	return func(c *socketConfig) { c.userIn = in; c.userOut = out }
}

// WithIdentity sets the socket's ZMQ_IDENTITY at construction time.
func WithIdentity(id []byte) Option {
	return func(c *socketConfig) { c.identity = id }
}

// WithPlainServer enables PLAIN-mechanism server mode, where supported by
// the underlying zmq4 binding.
func WithPlainServer(v bool) Option {
	return func(c *socketConfig) { c.plainServer = v }
}

// WithPlainUser sets the PLAIN-mechanism username, where supported.
func WithPlainUser(u string) Option {
	return func(c *socketConfig) { c.plainUser = u }
}

// WithPlainPass sets the PLAIN-mechanism password, where supported.
func WithPlainPass(p string) Option {
	return func(c *socketConfig) { c.plainPass = p }
}

// WithZapDomain sets the ZAP authentication domain, where supported.
func WithZapDomain(domain string) Option {
	return func(c *socketConfig) { c.zapDomain = domain }
}

// WithSendHWM sets the send high-water mark, where supported.
func WithSendHWM(n int) Option {
	return func(c *socketConfig) { c.sendHWM = n; c.hasSendHWM = true }
}

// WithRecvHWM sets the receive high-water mark, where supported.
func WithRecvHWM(n int) Option {
	return func(c *socketConfig) { c.recvHWM = n; c.hasRecvHWM = true }
}

// WithSubscribe subscribes a SUB socket to topic at construction time. May
// be repeated for multiple topics.
func WithSubscribe(topic string) Option {
	return func(c *socketConfig) { c.subscribe = append(c.subscribe, topic) }
}

// WithReqRetry relaxes REQ's strict send/recv alternation, allowing a REQ
// socket to re-send without first receiving a reply (useful for retry
// logic against a Router that may drop requests).
func WithReqRetry(v bool) Option {
	return func(c *socketConfig) { c.reqRetry = v }
}
