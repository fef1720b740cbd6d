// Package config loads and hot-reloads the declarative socket topology a
// zmqbridge process maintains, in the flat JSON-struct style the teacher
// app uses for its own configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SocketSpec declares one socket to create at startup.
type SocketSpec struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Bind      []string `json:"bind,omitempty"`
	Connect   []string `json:"connect,omitempty"`
	Subscribe []string `json:"subscribe,omitempty"`
	Identity  string   `json:"identity,omitempty"`
}

// validateName rejects socket names that would be awkward to use as map
// keys or log fields: empty, or containing path separators or "..".
func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("config: socket name is empty")
	}
	if strings.ContainsAny(name, `/\ `) || strings.Contains(name, "..") {
		return "", fmt.Errorf("config: socket name %q must not contain spaces, slashes or '..'", name)
	}
	return name, nil
}

// Topology is the declarative set of sockets a zmqbridge process should
// maintain.
type Topology struct {
	Sockets []SocketSpec `json:"sockets"`
}

// Load reads and parses a topology file.
func Load(path string) (Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Topology{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var t Topology
	if err := json.Unmarshal(data, &t); err != nil {
		return Topology{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return t, nil
}

// Ensure loads path if it exists, or writes and returns an empty topology
// otherwise. The returned bool reports whether it created the file.
func Ensure(path string) (Topology, bool, error) {
	if _, err := os.Stat(path); err == nil {
		t, loadErr := Load(path)
		return t, false, loadErr
	}
	t := Topology{}
	if err := save(path, t); err != nil {
		return Topology{}, false, err
	}
	return t, true, nil
}

// save writes t as indented JSON to path, creating parent directories if
// needed.
func save(path string, t Topology) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
