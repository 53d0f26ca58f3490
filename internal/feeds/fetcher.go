package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slowlime/feedgen/internal/models"
	"github.com/slowlime/feedgen/internal/storage"
)

// userAgentTransport tags every outgoing request with an identifying
// User-Agent before delegating to the wrapped transport.
type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(req)
}

// Fetcher drives every enabled feed's independent fetch/extract/persist
// cycle. One cooperative task runs per feed for the Fetcher's lifetime.
type Fetcher struct {
	States          map[string]*State
	Store           *storage.Store
	Client          *http.Client
	MaxInitialSleep time.Duration
}

// NewHTTPClient builds the shared HTTP client used by the Fetcher, wrapping
// transport with a User-Agent tag. The only timeout set here is the 300s
// overall request timeout; connect and read timeouts are whatever transport
// carries. cmd/feedgen passes http.DefaultTransport, which dials with a 30s
// timeout and sets no per-read timeout.
func NewHTTPClient(transport http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			next:      transport,
			userAgent: "feedgen/1.0 (+https://github.com/slowlime/feedgen)",
		},
		Timeout: 300 * time.Second,
	}
}

// Run starts one task per enabled feed and blocks until ctx is cancelled or
// any task returns a non-nil error, at which point every other task is
// cancelled too (errgroup's standard fan-out/fan-in supervision).
func (f *Fetcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for name, st := range f.States {
		if !st.Enabled {
			continue
		}
		name, st := name, st
		g.Go(func() error {
			f.runFeed(ctx, name, st)
			return nil
		})
	}

	return g.Wait()
}

// scheduledTimer pairs a time.Timer with the wall-clock instant it is
// currently armed to fire at, so a preempting force-update can report how
// much of the remaining wait it skipped.
type scheduledTimer struct {
	timer    *time.Timer
	deadline time.Time
}

func newScheduledTimer(d time.Duration) *scheduledTimer {
	return &scheduledTimer{timer: time.NewTimer(d), deadline: time.Now().Add(d)}
}

func (s *scheduledTimer) reset(d time.Duration) {
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timer.Reset(d)
	s.deadline = time.Now().Add(d)
}

func (s *scheduledTimer) remaining() time.Duration {
	return time.Until(s.deadline)
}

// runFeed implements the per-feed scheduler: the tick timer is first armed
// with the jittered initial sleep, then a loop waits for the earliest of cancellation, a force-update
// signal, or the tick timer, and reschedules from "now" after every tick to
// avoid a spiral of death on slow ticks.
func (f *Fetcher) runFeed(ctx context.Context, name string, st *State) {
	slog.Info("feed task starting", "feed", name)

	timer := newScheduledTimer(f.initialSleep(ctx, name, st))
	defer timer.timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("feed task stopping", "feed", name)
			return

		case <-st.ForceUpdate:
			slog.Info("force-update preempted scheduled tick", "feed", name, "preempted_by", timer.remaining())
			f.tick(ctx, name, st)
			timer.reset(st.FetchInterval)

		case <-timer.timer.C:
			f.tick(ctx, name, st)
			timer.reset(st.FetchInterval)
		}
	}
}

// initialSleep computes [0, max_initial_sleep) jitter plus however much of
// the feed's cadence remains since its last recorded write (zero if never
// written, or if the interval has already fully elapsed). On overflow it
// falls back to the jitter alone.
func (f *Fetcher) initialSleep(ctx context.Context, name string, st *State) time.Duration {
	offset := time.Duration(0)
	if f.MaxInitialSleep > 0 {
		offset = time.Duration(rand.Int63n(int64(f.MaxInitialSleep)))
	}

	lastUpdated, err := f.Store.GetFeedLastUpdated(ctx, name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("reading last_updated for initial sleep; defaulting to jitter only", "feed", name, "error", err)
		}
		return offset
	}

	remaining := time.Until(lastUpdated.Add(st.FetchInterval))
	if remaining < 0 {
		remaining = 0
	}

	total := remaining + offset
	if total < remaining || total < offset {
		return offset // overflow
	}
	return total
}

// tick runs one fetch-extract-persist cycle. All failures are logged, never
// fatal to the feed task.
func (f *Fetcher) tick(ctx context.Context, name string, st *State) {
	body, err := f.fetchBody(ctx, st.RequestURL.String())
	if err != nil {
		slog.Error("fetch failed", "feed", name, "error", err)
		return
	}

	var entries []models.Entry
	err = st.WithExtractor(func(ex Extractor) error {
		var err error
		entries, err = ex.Extract(ctx, Context{FetchURL: st.RequestURL}, body)
		return err
	})
	if err != nil {
		slog.Error("extraction failed", "feed", name, "error", err)
		return
	}

	if err := f.Store.UpsertEntries(ctx, name, entries); err != nil {
		slog.Error("persisting entries failed", "feed", name, "error", err)
		return
	}

	slog.Info("tick complete", "feed", name, "entry_count", len(entries))
}

func (f *Fetcher) fetchBody(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	return string(data), nil
}
