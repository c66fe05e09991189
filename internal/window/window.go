// Package window defines the snapshot-provider contract the agent consumes
// and the classification policy that turns raw window descriptors into
// reception windows and customer popups.
//
// Window enumeration itself is platform work and lives outside this module:
// a provider is any program or component that can list visible top-level
// windows on demand.
package window

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// Window describes one visible top-level OS window. Handle is stable across
// snapshots for the lifetime of the underlying OS window.
type Window struct {
	Handle  uint64 `json:"handle"`
	Class   string `json:"className"`
	Title   string `json:"title"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Visible bool   `json:"visible"`
}

// Snapshotter returns the current visible-window list. Implementations must
// be side-effect-free and return promptly.
type Snapshotter interface {
	Snapshot() ([]Window, error)
}

// ExecSnapshotter shells out to an external enumeration command that prints
// a JSON array of windows on stdout. This is how the per-OS provider is
// plugged in without this module carrying platform syscalls.
type ExecSnapshotter struct {
	name    string
	args    []string
	timeout time.Duration
}

// NewExecSnapshotter builds a provider around the given command line.
func NewExecSnapshotter(name string, args ...string) *ExecSnapshotter {
	return &ExecSnapshotter{name: name, args: args, timeout: 2 * time.Second}
}

func (s *ExecSnapshotter) Snapshot() ([]Window, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, s.name, s.args...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("snapshot command failed: %w", err)
	}

	var windows []Window
	if err := json.Unmarshal(out.Bytes(), &windows); err != nil {
		return nil, fmt.Errorf("snapshot output is not a window list: %w", err)
	}
	return windows, nil
}

// StaticSnapshotter serves a fixed window list that can be swapped at
// runtime. Used in tests and as the no-provider fallback.
type StaticSnapshotter struct {
	mu      sync.Mutex
	windows []Window
	err     error
}

func NewStaticSnapshotter(windows ...Window) *StaticSnapshotter {
	return &StaticSnapshotter{windows: windows}
}

// Set replaces the served window list.
func (s *StaticSnapshotter) Set(windows ...Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = windows
	s.err = nil
}

// Fail makes subsequent snapshots return err until Set is called.
func (s *StaticSnapshotter) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StaticSnapshotter) Snapshot() ([]Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Window, len(s.windows))
	copy(out, s.windows)
	return out, nil
}
