// Package prefs persists the per-site width preference.
//
// A Store is an opaque key-value store of JSON values. The only key viewflex
// writes is Key, holding a map from site to width in rem. The Bridge layers
// defaults, validation and change notification on top of any Store.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
)

// Key is the store key of the width settings map.
const Key = "widthSettings"

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("prefs: store closed")

// Store is a key-value store of JSON values.
type Store interface {
	// Get returns the value of key, ok=false when it was never set.
	Get(ctx context.Context, key string) (value json.RawMessage, ok bool, err error)
	// Update replaces the value of key with fn(old). The read and the write
	// are atomic with respect to other Update calls on the same store.
	Update(ctx context.Context, key string, fn func(old json.RawMessage, ok bool) (json.RawMessage, error)) error
	Close() error
}

// Watchable is implemented by stores that can report writes, including
// writes made by other processes.
type Watchable interface {
	// Watch blocks until ctx is done, calling onChange after writes. It
	// also calls onChange once the watch is armed, so a reader that loaded
	// before calling Watch sees writes made in between. Calls may be
	// spurious.
	Watch(ctx context.Context, onChange func()) error
}

// Set writes value under key.
func Set(ctx context.Context, s Store, key string, value json.RawMessage) error {
	return s.Update(ctx, key, func(json.RawMessage, bool) (json.RawMessage, error) {
		return value, nil
	})
}
