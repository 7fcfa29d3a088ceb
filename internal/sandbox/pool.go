package sandbox

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bridgeScope/internal/metrics"
	"bridgeScope/internal/model"
)

// ErrPoolExhausted is returned when every entry of a session pool is already claimed.
var ErrPoolExhausted = errors.New("no free sandbox in session pool")

// Future is a sandbox handle that is provisioned asynchronously.
type Future struct {
	done   chan struct{}
	handle model.SandboxHandle
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(handle model.SandboxHandle, err error) {
	f.handle = handle
	f.err = err
	close(f.done)
}

// Wait blocks until the sandbox is provisioned or ctx is done.
func (f *Future) Wait(ctx context.Context) (model.SandboxHandle, error) {
	select {
	case <-f.done:
		return f.handle, f.err
	case <-ctx.Done():
		return model.SandboxHandle{}, ctx.Err()
	}
}

type poolEntry struct {
	future  *Future
	claimed bool
}

// Session is the per-aggregation pool of cloned sandboxes.
// Entries are single-use: a claim is never released.
type Session struct {
	ID     string
	Origin model.SandboxHandle

	mu      sync.Mutex
	entries []*poolEntry
}

// NewSession creates count entries cloned from origin. Clones are issued by a
// single provisioning goroutine, one at a time and in entry order, so the
// sandbox service never sees a burst of clone requests from one session.
func NewSession(ctx context.Context, service Service, origin model.SandboxHandle, count int, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		ID:      uuid.New().String(),
		Origin:  origin,
		entries: make([]*poolEntry, count),
	}
	futures := make([]*Future, count)
	for i := range s.entries {
		futures[i] = newFuture()
		s.entries[i] = &poolEntry{future: futures[i]}
	}

	log := logger.With(zap.String("session", s.ID), zap.String("origin", origin.ID))
	go provision(ctx, service, origin.ID, futures, log)

	return s
}

func provision(ctx context.Context, service Service, originID string, futures []*Future, logger *zap.Logger) {
	for i, future := range futures {
		if err := ctx.Err(); err != nil {
			future.resolve(model.SandboxHandle{}, err)
			continue
		}
		handle, err := service.Clone(ctx, originID)
		if err != nil {
			logger.Warn("clone sandbox failed", zap.Int("entry", i), zap.Error(err))
		} else {
			logger.Debug("sandbox cloned", zap.Int("entry", i), zap.String("sandbox", handle.ID))
		}
		future.resolve(handle, err)
	}
}

// Claim takes the first unclaimed entry and returns its handle future.
func (s *Session) Claim() (*Future, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.claimed {
			continue
		}
		entry.claimed = true
		metrics.SandboxClaims.WithLabelValues("ok").Inc()
		return entry.future, nil
	}
	metrics.SandboxClaims.WithLabelValues("exhausted").Inc()
	return nil, ErrPoolExhausted
}

// Size returns the number of entries in the pool.
func (s *Session) Size() int {
	return len(s.entries)
}

// Free returns the number of unclaimed entries.
func (s *Session) Free() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	free := 0
	for _, entry := range s.entries {
		if !entry.claimed {
			free++
		}
	}
	return free
}
