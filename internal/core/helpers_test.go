package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"alienrisk/pkg/domain"
)

var errInjected = errors.New("injected failure")

// fakeBackend is an in-memory domain.Backend with switchable failures.
type fakeBackend struct {
	mu        sync.Mutex
	data      map[string][]byte
	readErr   error
	writeErr  error
	removeErr error
	writes    int
	removes   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string][]byte)}
}

func (f *fakeBackend) Read(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (f *fakeBackend) Write(_ context.Context, key string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes++
	f.data[key] = append([]byte(nil), payload...)
	return nil
}

func (f *fakeBackend) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removes++
	delete(f.data, key)
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) raw(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.data[key])
}

func (f *fakeBackend) set(key, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = []byte(payload)
}

// stepClock returns start, then advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	cur  time.Time
	step time.Duration
}

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newStepClock() *stepClock {
	return &stepClock{cur: testEpoch, step: time.Minute}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.cur
	c.cur = c.cur.Add(c.step)
	return t
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("snap-%d", n)
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeBackend, *stepClock) {
	t.Helper()
	backend := newFakeBackend()
	clock := newStepClock()
	base := []Option{WithClock(clock.Now), WithIDGenerator(sequentialIDs())}
	return NewStore(backend, append(base, opts...)...), backend, clock
}

func mustCreate(t *testing.T, s *Store, form domain.FormData, source domain.Source) domain.Snapshot {
	t.Helper()
	snap, err := s.Create(context.Background(), form, source, nil)
	if err != nil {
		t.Fatalf("create %q: %v", form.Title, err)
	}
	return snap
}

func form(title string, category domain.Category, likelihood, impact int) domain.FormData {
	return domain.FormData{Title: title, Category: category, Likelihood: likelihood, Impact: impact}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// captureLogger records log calls by level.
type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureLogger) log(level, msg string) {
	c.mu.Lock()
	c.entries = append(c.entries, level+": "+msg)
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.log("debug", msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.log("info", msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.log("warn", msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.log("error", msg) }

func (c *captureLogger) count(level string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if len(e) > len(level) && e[:len(level)+1] == level+":" {
			n++
		}
	}
	return n
}
