// Package permstore persists the microphone permission state across process
// restarts so the user is never re-prompted after a grant.
package permstore

import (
	"context"
	"errors"
	"log"
)

// State is the tri-state permission value.
type State int

const (
	Undetermined State = iota
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "undetermined"
	}
}

// ParseState maps a stored string back to a State. Unrecognized values are
// Undetermined.
func ParseState(v string) State {
	switch v {
	case "granted":
		return Granted
	case "denied":
		return Denied
	default:
		return Undetermined
	}
}

// Key under which the permission flag is stored in both backends.
const Key = "voicebridge.mic.permission"

// ErrNotFound is returned by KV implementations when the key is absent.
var ErrNotFound = errors.New("permstore: not found")

// KV is the asynchronous key/value bridge. The cloud backend is provided by
// the hosting shell; the local backend is the on-disk fallback.
type KV interface {
	SetItem(ctx context.Context, key, value string) error
	GetItem(ctx context.Context, key string) (string, error)
	RemoveItem(ctx context.Context, key string) error
}

// Store reads and writes the permission flag through a cloud KV with a local
// fallback. Either backend may be nil.
type Store struct {
	cloud KV
	local KV
}

// New builds a Store. cloud may be nil when the host provides no bridge.
func New(cloud, local KV) *Store {
	return &Store{cloud: cloud, local: local}
}

// Load reads the persisted state, preferring the cloud backend. Read failures
// degrade to the local store, then to Undetermined; Load never fails.
func (s *Store) Load(ctx context.Context) State {
	if s == nil {
		return Undetermined
	}
	if s.cloud != nil {
		if v, err := s.cloud.GetItem(ctx, Key); err == nil {
			return ParseState(v)
		} else if !errors.Is(err, ErrNotFound) {
			log.Printf("permstore: cloud read failed, trying local: %v", err)
		}
	}
	if s.local != nil {
		if v, err := s.local.GetItem(ctx, Key); err == nil {
			return ParseState(v)
		}
	}
	return Undetermined
}

// Save persists the state to the cloud backend, falling back to the local
// store when the cloud write fails or no cloud bridge exists.
func (s *Store) Save(ctx context.Context, st State) error {
	if s == nil {
		return nil
	}
	if s.cloud != nil {
		if err := s.cloud.SetItem(ctx, Key, st.String()); err == nil {
			return nil
		} else {
			log.Printf("permstore: cloud write failed, falling back to local: %v", err)
		}
	}
	if s.local != nil {
		return s.local.SetItem(ctx, Key, st.String())
	}
	return nil
}

// Clear removes the persisted flag from both backends. Test/debug only.
func (s *Store) Clear(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var firstErr error
	for _, kv := range []KV{s.cloud, s.local} {
		if kv == nil {
			continue
		}
		if err := kv.RemoveItem(ctx, Key); err != nil && !errors.Is(err, ErrNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
