package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	logging "github.com/ipfs/go-log/v2"

	"github.com/hhenrich/zmqbridge/internal/engine"
	"github.com/hhenrich/zmqbridge/internal/socket"
)

var log = logging.Logger("zmqbridge/config")

// Manager applies a Topology's declared sockets against an engine.Context
// and keeps them in sync with a JSON file on disk.
type Manager struct {
	ctx  *engine.Context
	path string

	mu      sync.Mutex
	active  map[string]*socket.Socket
	watcher *fsnotify.Watcher
}

// NewManager builds a Manager that will apply path's topology against ctx.
func NewManager(ctx *engine.Context, path string) *Manager {
	return &Manager{ctx: ctx, path: path, active: make(map[string]*socket.Socket)}
}

// Apply loads the topology file once and reconciles the active socket set
// to match it.
func (m *Manager) Apply() error {
	t, err := Load(m.path)
	if err != nil {
		return err
	}
	return m.reconcile(t)
}

// Watch starts an fsnotify watch on the topology file's directory and
// reconciles on every write, mirroring the teacher's Lua engine watcher.
func (m *Manager) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	m.watcher = w

	go m.watchLoop(w)
	return nil
}

func (m *Manager) watchLoop(w *fsnotify.Watcher) {
	target := filepath.Clean(m.path)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			t, err := Load(m.path)
			if err != nil {
				log.Warnf("config: reload failed: %v", err)
				continue
			}
			if err := m.reconcile(t); err != nil {
				log.Warnf("config: reconcile failed: %v", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warnf("config: watcher error: %v", err)
		}
	}
}

// Close stops the fsnotify watch, if one was started. It does not close
// any active sockets.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}

// reconcile diffs the declared socket set against the active one: newly
// declared sockets are created, sockets no longer declared are closed.
// Sockets whose spec changed but are still declared are left untouched;
// rebuilding a live socket's endpoints is out of scope for hot reload.
func (m *Manager) reconcile(t Topology) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	declared := make(map[string]SocketSpec, len(t.Sockets))
	for _, spec := range t.Sockets {
		name, err := validateName(spec.Name)
		if err != nil {
			log.Warnf("config: skipping socket: %v", err)
			continue
		}
		spec.Name = name
		declared[name] = spec
	}

	for name, sock := range m.active {
		if _, ok := declared[name]; !ok {
			socket.Close(sock)
			delete(m.active, name)
			log.Infof("config: removed socket %q", name)
		}
	}

	for name, spec := range declared {
		if _, ok := m.active[name]; ok {
			continue
		}
		sock, err := fromSpec(m.ctx, spec)
		if err != nil {
			log.Warnf("config: failed to create socket %q: %v", name, err)
			continue
		}
		m.active[name] = sock
		log.Infof("config: added socket %q (%s)", name, spec.Kind)
	}
	return nil
}

func fromSpec(ctx *engine.Context, spec SocketSpec) (*socket.Socket, error) {
	kind, err := kindFromString(spec.Kind)
	if err != nil {
		return nil, err
	}

	opts := []socket.Option{socket.WithContext(ctx)}
	if len(spec.Bind) > 0 {
		opts = append(opts, socket.WithBind(spec.Bind...))
	}
	if len(spec.Connect) > 0 {
		opts = append(opts, socket.WithConnect(spec.Connect...))
	}
	if spec.Identity != "" {
		opts = append(opts, socket.WithIdentity([]byte(spec.Identity)))
	}
	for _, topic := range spec.Subscribe {
		opts = append(opts, socket.WithSubscribe(topic))
	}
	return socket.New(kind, opts...)
}

func kindFromString(s string) (socket.Kind, error) {
	switch s {
	case "pair":
		return socket.Pair, nil
	case "pub":
		return socket.Pub, nil
	case "sub":
		return socket.Sub, nil
	case "req":
		return socket.Req, nil
	case "rep":
		return socket.Rep, nil
	case "dealer":
		return socket.Dealer, nil
	case "router":
		return socket.Router, nil
	case "xpub":
		return socket.XPub, nil
	case "xsub":
		return socket.XSub, nil
	case "pull":
		return socket.Pull, nil
	case "push":
		return socket.Push, nil
	case "stream":
		return socket.Stream, nil
	default:
		return 0, fmt.Errorf("config: unknown socket kind %q", s)
	}
}
