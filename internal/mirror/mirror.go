// Package mirror keeps a best-effort JSON copy of the conversation map in a
// key-value store. The in-memory store stays authoritative; every failure is
// returned as a typed error for the caller to log, and Load always yields a
// usable map.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rcliao/agent-convo/internal/kv"
	"github.com/rcliao/agent-convo/internal/model"
)

// DefaultKey is the key the conversation map is stored under.
const DefaultKey = "app:agent-conversations"

var (
	// ErrRead means the backing store could not be read.
	ErrRead = errors.New("persistence read failed")
	// ErrMalformed means the stored value could not be decoded.
	ErrMalformed = errors.New("persisted data malformed")
	// ErrWrite means the snapshot could not be encoded or written.
	ErrWrite = errors.New("persistence write failed")
)

// Mirror serializes conversation maps into a kv.Store under a single key.
type Mirror struct {
	kv  kv.Store
	key string
}

// New returns a Mirror over s. A nil s yields a disabled mirror. An empty
// key means DefaultKey.
func New(s kv.Store, key string) *Mirror {
	if key == "" {
		key = DefaultKey
	}
	return &Mirror{kv: s, key: key}
}

// Key returns the storage key.
func (m *Mirror) Key() string { return m.key }

// Enabled reports whether the mirror has a backing store.
func (m *Mirror) Enabled() bool { return m != nil && m.kv != nil }

// Load reads the persisted map. The returned map is never nil; on error it
// is empty and err wraps ErrRead or ErrMalformed.
func (m *Mirror) Load(ctx context.Context) (map[string]model.Conversation, error) {
	out := make(map[string]model.Conversation)
	if !m.Enabled() {
		return out, nil
	}

	raw, ok, err := m.kv.Get(ctx, m.key)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrRead, err)
	}
	if !ok || raw == "" {
		return out, nil
	}

	var decoded map[string]model.Conversation
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for _, c := range decoded {
		if c.ID == "" {
			continue
		}
		if c.Messages == nil {
			c.Messages = []model.Message{}
		}
		out[c.ID] = c
	}
	return out, nil
}

// Persist writes the full map. On failure err wraps ErrWrite.
func (m *Mirror) Persist(ctx context.Context, convs map[string]model.Conversation) error {
	if !m.Enabled() {
		return nil
	}
	b, err := json.Marshal(convs)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrWrite, err)
	}
	if err := m.kv.Set(ctx, m.key, string(b)); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Close closes the backing store.
func (m *Mirror) Close() error {
	if !m.Enabled() {
		return nil
	}
	return m.kv.Close()
}
