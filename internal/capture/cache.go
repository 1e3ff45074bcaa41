package capture

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/chadiek/voicebridge/internal/permstore"
)

// Cache guarantees at most one live capture handle per process and at most
// one OS permission prompt per grant. Sessions borrow the handle; ordinary
// session stop must never tear it down.
type Cache struct {
	opener Opener
	perms  *permstore.Store

	mu     sync.Mutex
	handle *Handle
	state  permstore.State
	loaded bool
}

// NewCache builds a Cache around an Opener and a permission store. Both are
// injected by the composition root; perms may be nil.
func NewCache(opener Opener, perms *permstore.Store) *Cache {
	return &Cache{opener: opener, perms: perms}
}

// CheckPermission reports the cached permission state, consulting the
// persistent store on first use. It never fails; an unavailable store reads
// as Undetermined.
func (c *Cache) CheckPermission(ctx context.Context) permstore.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permissionLocked(ctx)
}

func (c *Cache) permissionLocked(ctx context.Context) permstore.State {
	if !c.loaded {
		c.state = c.perms.Load(ctx)
		c.loaded = true
	}
	return c.state
}

// RequestPermission ensures the user has granted microphone access. Already
// granted permission returns immediately without prompting. Otherwise a probe
// acquisition is opened and immediately stopped, purely to drive the OS
// prompt, and a grant is persisted. Failures come back classified so the
// caller can show a precise message.
func (c *Cache) RequestPermission(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.permissionLocked(ctx) == permstore.Granted {
		return true, nil
	}
	if c.handle != nil && c.handle.Live() {
		// A live handle implies a grant even if the store lost it.
		c.setPermissionLocked(ctx, permstore.Granted)
		return true, nil
	}

	dev, err := c.opener.Open(ctx, DefaultConstraints())
	if err != nil {
		if KindOf(err) == KindDenied {
			c.setPermissionLocked(ctx, permstore.Denied)
		}
		return false, err
	}
	// Probe only: stop straight away, the grant is what we were after.
	dev.Stop()
	c.setPermissionLocked(ctx, permstore.Granted)
	return true, nil
}

func (c *Cache) setPermissionLocked(ctx context.Context, st permstore.State) {
	c.state = st
	c.loaded = true
	if err := c.perms.Save(ctx, st); err != nil {
		log.Printf("capture: persist permission state: %v", err)
	}
}

// AcquireStream returns the cached handle when it is live, otherwise opens a
// fresh device with the given constraints and caches it. A dead cached handle
// (tracks stopped externally) is detected and replaced. Errors come back
// classified; a denial invalidates the cached permission state.
func (c *Cache) AcquireStream(ctx context.Context, cons Constraints) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquireLocked(ctx, cons)
}

func (c *Cache) acquireLocked(ctx context.Context, cons Constraints) (*Handle, error) {
	if c.handle != nil {
		if c.handle.Live() {
			return c.handle, nil
		}
		log.Println("capture: cached handle is dead, re-acquiring")
		c.handle.stop()
		c.handle = nil
	}

	dev, err := c.opener.Open(ctx, cons)
	if err != nil && KindOf(err) == KindConstraints {
		// One automatic retry with relaxed defaults before surfacing.
		log.Printf("capture: constraints unsatisfiable, retrying with defaults: %v", err)
		dev, err = c.opener.Open(ctx, DefaultConstraints())
	}
	if err != nil {
		if KindOf(err) == KindDenied {
			// Permission was revoked mid-session; the cached grant is stale.
			c.setPermissionLocked(ctx, permstore.Undetermined)
		}
		return nil, err
	}

	c.handle = newHandle(dev)
	c.setPermissionLocked(ctx, permstore.Granted)
	return c.handle, nil
}

// AcquireStreamWithRetry calls AcquireStream up to maxAttempts times with
// exponential backoff, surfacing the terminal failure only after all attempts
// are exhausted. Denial is not retried; prompting again cannot help.
func (c *Cache) AcquireStreamWithRetry(ctx context.Context, maxAttempts int, cons Constraints) (*Handle, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewExponential(200*time.Millisecond))

	var handle *Handle
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		h, err := c.AcquireStream(ctx, cons)
		if err != nil {
			if KindOf(err) == KindDenied {
				return err
			}
			return retry.RetryableError(err)
		}
		handle = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// ReleaseForTeardown stops all tracks and discards the handle. Reserved for
// full application shutdown; calling it on ordinary session stop would force
// a re-prompt on the next conversation.
func (c *Cache) ReleaseForTeardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		c.handle.stop()
		c.handle = nil
	}
}
