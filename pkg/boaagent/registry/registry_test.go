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

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	r := New()
	sess := NewSession("boa-1", "handle-1")

	require.NoError(t, r.Insert("boa-1", sess))

	got, ok := r.Get("boa-1")
	require.True(t, ok)
	assert.Same(t, sess, got)

	removed, ok := r.Remove("boa-1")
	require.True(t, ok)
	assert.Same(t, sess, removed)

	_, ok = r.Get("boa-1")
	assert.False(t, ok)
}

func TestInsertDuplicateFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert("boa-1", NewSession("boa-1", "h")))
	assert.Error(t, r.Insert("boa-1", NewSession("boa-1", "h")))
}

func TestRemoveUnknownIsFalse(t *testing.T) {
	r := New()
	_, ok := r.Remove("nope")
	assert.False(t, ok)
}

func TestDrainEmptiesRegistry(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert("a", NewSession("a", "ha")))
	require.NoError(t, r.Insert("b", NewSession("b", "hb")))

	drained := r.Drain()
	assert.Len(t, drained, 2)

	_, ok := r.Get("a")
	assert.False(t, ok)
	assert.Empty(t, r.Drain())
}

func TestSessionStateTransitions(t *testing.T) {
	sess := NewSession("boa-1", "h")
	assert.Equal(t, Created, sess.State())

	sess.SetState(Running)
	assert.Equal(t, Running, sess.State())

	exec := &Exec{ID: "e1", ExecID: "exec-1"}
	sess.SetCurrentExec(exec)
	assert.Same(t, exec, sess.CurrentExec())

	sess.SetCurrentExec(nil)
	assert.Nil(t, sess.CurrentExec())
}
