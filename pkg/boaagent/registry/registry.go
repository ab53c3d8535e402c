// Copyright The TrustTunnel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry holds the per-connection map from container_id to
// Session. It is the only shared mutable state touched by concurrent
// tasks within a connection; callers must never hold its lock across
// runtime or socket I/O.
package registry

import (
	"fmt"
	"sync"
)

// State names the lifecycle stage of a Session.
type State string

const (
	Created   State = "Created"
	Running   State = "Running"
	Executing State = "Executing"
	Stopped   State = "Stopped"
	Removed   State = "Removed"
)

// Exec is the handle to an in-progress exec within a Session.
type Exec struct {
	ID     string
	ExecID string
	Cancel func()
}

// Session is the per-container record described in §3.
type Session struct {
	ContainerID   string
	RuntimeHandle string

	mu          sync.Mutex
	state       State
	currentExec *Exec
}

// NewSession constructs a freshly-Created session.
func NewSession(containerID, runtimeHandle string) *Session {
	return &Session{
		ContainerID:   containerID,
		RuntimeHandle: runtimeHandle,
		state:         Created,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// SetState transitions the session. Executing may only be set while Running;
// callers are expected to have already confirmed that via inspect_running.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
}

// CurrentExec returns the session's in-progress exec handle, if any.
func (s *Session) CurrentExec() *Exec {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentExec
}

// SetCurrentExec installs (or clears, with nil) the in-progress exec handle.
func (s *Session) SetCurrentExec(e *Exec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentExec = e
}

// Registry is the connection-local mapping from container_id to Session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Insert adds a freshly-created session. It fails if the id is already
// present, which should not happen since ids are freshly generated.
func (r *Registry) Insert(id string, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return fmt.Errorf("session %s already registered", id)
	}

	r.sessions[id] = sess

	return nil
}

// Get looks up a session by container_id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]

	return sess, ok
}

// Remove deletes and returns the session for id, if present.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}

	return sess, ok
}

// Drain removes and returns every session currently registered, used on
// connection teardown to reclaim containers best-effort.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		out = append(out, sess)
		delete(r.sessions, id)
	}

	return out
}
