// Package health serves /livez and /readyz from probes that run in the
// background.
//
// A probe flips to failing only after FailureThreshold consecutive errors and
// back to passing after SuccessThreshold consecutive successes, so a single
// slow ping does not take the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Kind tells which endpoint a probe contributes to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
	// Degraded probes are reported on both endpoints but never fail them.
	Degraded
)

// CheckFunc returns nil when the component is healthy.
type CheckFunc func(ctx context.Context) error

// Probe is one registered check.
type Probe struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Check   CheckFunc
	// Zero thresholds default to 3 failures and 1 success.
	FailureThreshold int
	SuccessThreshold int
}

type probeState struct {
	Probe

	passing atomic.Bool
	lastErr atomic.Pointer[string]

	// Touched only by the goroutine running the probe.
	fails int
	oks   int
}

func (s *probeState) observe(err error) (changed bool) {
	was := s.passing.Load()
	if err != nil {
		msg := err.Error()
		s.lastErr.Store(&msg)
		s.oks = 0
		s.fails++
		if s.fails >= s.FailureThreshold {
			s.passing.Store(false)
		}
	} else {
		s.lastErr.Store(nil)
		s.fails = 0
		s.oks++
		if s.oks >= s.SuccessThreshold {
			s.passing.Store(true)
		}
	}
	return was != s.passing.Load()
}

func (s *probeState) failure() string {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return "check is failing"
}

// Health tracks probe results and the manual readiness switch.
type Health struct {
	lg     *zap.Logger
	ready  atomic.Bool
	mu     sync.RWMutex
	probes []*probeState
}

// New creates a Health that starts not ready.
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

// Register adds a probe. Probes start as passing.
func (h *Health) Register(p Probe) {
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = 3
	}
	if p.SuccessThreshold <= 0 {
		p.SuccessThreshold = 1
	}
	if p.Timeout <= 0 {
		p.Timeout = time.Second
	}
	s := &probeState{Probe: p}
	s.passing.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, s)
	h.mu.Unlock()
}

// SetReady flips the manual readiness switch.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Run executes every probe now and then every interval until ctx is done.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	h.mu.RLock()
	probes := slices.Clone(h.probes)
	h.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range probes {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				h.runOnce(ctx, s)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

func (h *Health) runOnce(ctx context.Context, s *probeState) {
	checkCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	err := s.Check(checkCtx)
	if ctx.Err() != nil {
		return
	}
	if s.observe(err) {
		h.lg.Info("Probe state changed",
			zap.String("probe", s.Name),
			zap.Bool("passing", s.passing.Load()),
			zap.Error(err),
		)
	}
}

// Ready reports whether the switch is on and every readiness probe passes.
func (h *Health) Ready() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string)
	for _, s := range h.probes {
		if s.Kind == kind && !s.passing.Load() {
			out[s.Name] = s.failure()
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness), h.failures(Degraded))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures, h.failures(Degraded))
}

func writeObject(e *jx.Encoder, name string, m map[string]string) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)

	e.FieldStart(name)
	e.ObjStart()
	for _, k := range names {
		e.FieldStart(k)
		e.Str(m[k])
	}
	e.ObjEnd()
}

func writeStatus(w http.ResponseWriter, failures, degraded map[string]string) {
	status, text := http.StatusOK, "ok"
	if len(failures) > 0 {
		status, text = http.StatusServiceUnavailable, "unhealthy"
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(text)
	if len(failures) > 0 {
		writeObject(&e, "checks", failures)
	}
	if len(degraded) > 0 {
		writeObject(&e, "degraded", degraded)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
