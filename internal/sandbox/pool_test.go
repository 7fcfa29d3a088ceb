package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bridgeScope/internal/model"
)

type fakeService struct {
	mu          sync.Mutex
	delay       time.Duration
	failOn      map[int]bool
	issued      int
	inFlight    int
	maxInFlight int
}

func (f *fakeService) Create(context.Context, uint64, *uint64) (model.SandboxHandle, error) {
	return model.SandboxHandle{ID: "fresh", RPCEndpoint: "http://fresh"}, nil
}

func (f *fakeService) Clone(_ context.Context, originID string) (model.SandboxHandle, error) {
	f.mu.Lock()
	n := f.issued
	f.issued++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inFlight--
	fail := f.failOn[n]
	f.mu.Unlock()

	if fail {
		return model.SandboxHandle{}, fmt.Errorf("clone %d failed", n)
	}
	id := fmt.Sprintf("%s-clone-%d", originID, n)
	return model.SandboxHandle{ID: id, RPCEndpoint: "http://" + id}, nil
}

func (f *fakeService) Resolve(string) (model.SandboxHandle, bool) {
	return model.SandboxHandle{}, false
}

func TestSessionClaimsEachEntryOnce(t *testing.T) {
	svc := &fakeService{delay: time.Millisecond}
	origin := model.SandboxHandle{ID: "origin", RPCEndpoint: "http://origin"}
	session := NewSession(context.Background(), svc, origin, 3, nil)

	var wg sync.WaitGroup
	futures := make(chan *Future, 3)
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := session.Claim()
			if err != nil {
				errs <- err
				return
			}
			futures <- f
		}()
	}
	wg.Wait()
	close(futures)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected claim error: %v", err)
	}

	seen := make(map[string]bool)
	for f := range futures {
		handle, err := f.Wait(context.Background())
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
		if seen[handle.ID] {
			t.Fatalf("handle %s claimed twice", handle.ID)
		}
		seen[handle.ID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct handles, got %d", len(seen))
	}

	if _, err := session.Claim(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if session.Free() != 0 || session.Size() != 3 {
		t.Fatalf("pool accounting mismatch: free=%d size=%d", session.Free(), session.Size())
	}
}

func TestSessionTwoEntriesThreeClaims(t *testing.T) {
	svc := &fakeService{}
	session := NewSession(context.Background(), svc, model.SandboxHandle{ID: "origin"}, 2, nil)

	first, err := session.Claim()
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	second, err := session.Claim()
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if _, err := session.Claim(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("third claim: expected ErrPoolExhausted, got %v", err)
	}

	h1, err := first.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait first: %v", err)
	}
	h2, err := second.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait second: %v", err)
	}
	if h1.ID == h2.ID {
		t.Fatalf("claims share handle %s", h1.ID)
	}
}

func TestSessionProvisionsSequentially(t *testing.T) {
	svc := &fakeService{delay: 5 * time.Millisecond}
	session := NewSession(context.Background(), svc, model.SandboxHandle{ID: "origin"}, 4, nil)

	var handles []model.SandboxHandle
	for i := 0; i < 4; i++ {
		f, err := session.Claim()
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		h, err := f.Wait(context.Background())
		if err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
		handles = append(handles, h)
	}

	for i, h := range handles {
		want := fmt.Sprintf("origin-clone-%d", i)
		if h.ID != want {
			t.Fatalf("entry %d: got %s, want %s", i, h.ID, want)
		}
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.maxInFlight != 1 {
		t.Fatalf("expected serialized clones, max in flight %d", svc.maxInFlight)
	}
}

func TestSessionCloneFailureIsolated(t *testing.T) {
	svc := &fakeService{failOn: map[int]bool{0: true}}
	session := NewSession(context.Background(), svc, model.SandboxHandle{ID: "origin"}, 2, nil)

	first, _ := session.Claim()
	second, _ := session.Claim()

	if _, err := first.Wait(context.Background()); err == nil {
		t.Fatalf("expected first clone to fail")
	}
	h, err := second.Wait(context.Background())
	if err != nil {
		t.Fatalf("second clone should succeed: %v", err)
	}
	if h.ID != "origin-clone-1" {
		t.Fatalf("unexpected handle: %s", h.ID)
	}
}

func TestFutureWaitHonorsContext(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
