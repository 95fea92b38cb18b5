package widget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluefermion/reviews/internal/model"
)

// fakeClock fires timers only when Advance moves past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	done    bool
	stopped bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.done && !t.stopped
	t.stopped = true
	return active
}

// Advance moves time forward, running due callbacks in deadline order
// without holding the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.done || t.stopped || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

// fakeTransport records submissions and answers with err. When gate is set,
// Submit signals started and then waits for gate to close.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []model.ReviewSubmissionRequest
	err     error
	panicV  any
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeTransport) Submit(ctx context.Context, req model.ReviewSubmissionRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	err, panicV, gate, started := f.err, f.panicV, f.gate, f.started
	f.mu.Unlock()

	if panicV != nil {
		panic(panicV)
	}
	if gate != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return &SubmitError{Kind: KindNetwork, Err: ctx.Err()}
		}
	}
	return err
}

func (f *fakeTransport) Calls() []model.ReviewSubmissionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ReviewSubmissionRequest(nil), f.calls...)
}

const (
	chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iPhoneSafariUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	androidStockUA  = "Mozilla/5.0 (Linux; U; Android 4.0.3; ko-kr; LG-L160L Build/IML74K) AppleWebKit/534.30 (KHTML, like Gecko) Version/4.0 Mobile Safari/534.30"
)

type harness struct {
	page      *Page
	clock     *fakeClock
	transport *fakeTransport
	widget    *Widget
}

// newHarness builds a widget on a fresh page and makes it visible.
func newHarness(t *testing.T, raw map[string]any) *harness {
	t.Helper()
	page, err := NewPage("https://shop.example.com/products?utm_source=newsletter", "https://mail.example.com/", chromeWindowsUA)
	require.NoError(t, err)

	h := &harness{page: page, clock: &fakeClock{}, transport: &fakeTransport{}}
	if raw == nil {
		raw = map[string]any{"portalId": "acme", "delay": 1000}
	}
	cfg := ParseConfig(raw, Deployment{Endpoint: "https://api.example.com/api/reviews"})
	h.widget, err = New(page, cfg, WithClock(h.clock), WithTransport(h.transport))
	require.NoError(t, err)
	h.clock.Advance(cfg.Delay)
	return h
}

func (h *harness) clickStar(n int) {
	h.widget.Dispatch(context.Background(), Event{Type: Click, Target: h.widget.Star(n)})
}

func (h *harness) hoverStar(n int) {
	h.widget.Dispatch(context.Background(), Event{Type: MouseEnter, Target: h.widget.Star(n)})
}

func (h *harness) leaveStar(n int) {
	h.widget.Dispatch(context.Background(), Event{Type: MouseLeave, Target: h.widget.Star(n)})
}

func (h *harness) typeReview(s string) {
	h.widget.Dispatch(context.Background(), Event{Type: Input, Target: h.widget.Textarea(), Value: s})
}

func (h *harness) submit() {
	h.widget.Dispatch(context.Background(), Event{Type: Click, Target: h.widget.SubmitButton()})
}
