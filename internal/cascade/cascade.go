// Package cascade runs an ordered list of decode strategies over the
// variants of a scan area and stops at the first valid PDF417 symbol.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/idscan/internal/barcode"
	"github.com/MeKo-Tech/idscan/internal/preprocess"
)

// State is the position of a run in the cascade state machine.
type State int

const (
	Pending State = iota
	Trying
	Succeeded
	Exhausted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Trying:
		return "trying"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// DefaultStrategyTimeout bounds a single strategy when Options leaves it unset.
const DefaultStrategyTimeout = 3 * time.Second

// Capabilities lists the optional backends available at runtime.
type Capabilities struct {
	HighAccuracy bool
}

// Availability reports the capabilities by strategy name.
func (c Capabilities) Availability() map[string]bool {
	return map[string]bool{HighAccuracyName: c.HighAccuracy}
}

// Options configures a Cascade.
type Options struct {
	// StrategyTimeout is the wall-clock budget of one strategy. Zero
	// selects DefaultStrategyTimeout; a negative value disables the budget.
	StrategyTimeout time.Duration

	// Availability is reported with every outcome.
	Availability map[string]bool

	// Variants is the order of the variant sweep; empty means every
	// variant in pipeline order.
	Variants []preprocess.Variant

	// Formats narrows the symbologies searched by the generic detector and
	// the variant sweep; empty means all.
	Formats []barcode.Format

	// PureBarcode hints that scan areas hold nothing but the symbol.
	PureBarcode bool

	Logger *slog.Logger
}

// Attempt summarises one strategy invocation.
type Attempt struct {
	Strategy string        `json:"strategy"`
	Status   string        `json:"status"` // hit, empty, failure, timeout
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Outcome is the result of one cascade run.
type Outcome struct {
	State        State
	Text         string
	Method       string
	Strategy     string
	Variant      string
	BBox         image.Rectangle // in source image coordinates
	Availability map[string]bool
	Attempts     []Attempt
	Message      string
}

// Found reports whether a qualifying symbol was decoded.
func (o *Outcome) Found() bool { return o != nil && o.State == Succeeded }

// Err returns ErrNotFound for an exhausted run and nil otherwise.
func (o *Outcome) Err() error {
	if o == nil || o.State != Succeeded {
		return ErrNotFound
	}
	return nil
}

// Cascade is safe for concurrent use; all per-run state lives in the
// pipeline and the returned Outcome.
type Cascade struct {
	strategies []Strategy
	opts       Options
	logger     *slog.Logger
}

// New builds a cascade that tries strategies in the given order.
func New(opts Options, strategies ...Strategy) *Cascade {
	if opts.StrategyTimeout == 0 {
		opts.StrategyTimeout = DefaultStrategyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{strategies: strategies, opts: opts, logger: logger}
}

// Default assembles the standard order: HighAccuracy (when available),
// GenericDetector, VariantSweep.
func Default(backend barcode.Backend, caps Capabilities, opts Options) *Cascade {
	var strategies []Strategy
	if caps.HighAccuracy {
		strategies = append(strategies, &HighAccuracy{Backend: backend, PureBarcode: opts.PureBarcode})
	}
	strategies = append(strategies,
		&GenericDetector{Backend: backend, Formats: opts.Formats, PureBarcode: opts.PureBarcode},
		&VariantSweep{Backend: backend, Variants: opts.Variants, Formats: opts.Formats, PureBarcode: opts.PureBarcode},
	)
	if opts.Availability == nil {
		opts.Availability = caps.Availability()
	}
	return New(opts, strategies...)
}

// Strategies returns the strategy names in priority order.
func (c *Cascade) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run tries each strategy against p until one yields a qualifying result.
// origin is the position of the scan area in the source image; it is added
// to the symbol's bounding box. Strategy failures are logged and recorded
// in the outcome; only cancellation of ctx is returned as an error.
func (c *Cascade) Run(ctx context.Context, p *preprocess.Pipeline, origin image.Point) (*Outcome, error) {
	out := &Outcome{State: Pending, Availability: copyAvailability(c.opts.Availability)}

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.State = Trying

		start := time.Now()
		found, err := c.attempt(ctx, s, p)
		elapsed := time.Since(start)
		strategyDuration.WithLabelValues(s.Name()).Observe(elapsed.Seconds())

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		hit, ok := firstQualifying(found)
		attempt := Attempt{Strategy: s.Name(), Duration: elapsed}
		switch {
		case ok:
			attempt.Status = "hit"
		case err != nil && errors.Is(err, context.DeadlineExceeded):
			attempt.Status = "timeout"
		case err != nil:
			attempt.Status = "failure"
		default:
			attempt.Status = "empty"
		}
		if err != nil {
			attempt.Error = err.Error()
			c.logger.Warn("decode strategy failed",
				"strategy", s.Name(), "status", attempt.Status, "error", err)
		}
		strategyAttemptsTotal.WithLabelValues(s.Name(), attempt.Status).Inc()
		out.Attempts = append(out.Attempts, attempt)

		if !ok {
			c.logger.Debug("decode strategy found nothing",
				"strategy", s.Name(), "results", len(found), "duration", elapsed)
			continue
		}

		bbox := hit.Result.BBox
		if bbox.Empty() {
			bbox = p.Bounds()
		}
		out.State = Succeeded
		out.Text = hit.Result.Value
		out.Method = hit.Method
		if out.Method == "" {
			out.Method = s.Name()
		}
		out.Strategy = s.Name()
		out.Variant = hit.Variant.String()
		out.BBox = bbox.Sub(p.Bounds().Min).Add(origin)
		runsTotal.WithLabelValues(out.State.String()).Inc()
		c.logger.Debug("decoded PDF417",
			"method", out.Method, "bbox", out.BBox.String(), "length", len(out.Text))
		return out, nil
	}

	out.State = Exhausted
	out.Message = NotFoundMessage
	runsTotal.WithLabelValues(out.State.String()).Inc()
	return out, nil
}

// attempt runs one strategy under the configured budget. A strategy that
// overruns is abandoned; its goroutine finishes in the background.
func (c *Cascade) attempt(ctx context.Context, s Strategy, p *preprocess.Pipeline) ([]Hit, error) {
	actx := ctx
	cancel := context.CancelFunc(func() {})
	if c.opts.StrategyTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, c.opts.StrategyTimeout)
	}
	defer cancel()

	type result struct {
		hits []Hit
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &BackendError{Strategy: s.Name(), Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		found, err := s.Attempt(actx, p)
		if err != nil {
			var be *BackendError
			if !errors.As(err, &be) {
				err = &BackendError{Strategy: s.Name(), Err: err}
			}
		}
		done <- result{hits: found, err: err}
	}()

	select {
	case r := <-done:
		return r.hits, r.err
	case <-actx.Done():
		select {
		case r := <-done:
			return r.hits, r.err
		default:
		}
		return nil, &BackendError{Strategy: s.Name(), Err: actx.Err()}
	}
}

func firstQualifying(found []Hit) (Hit, bool) {
	for _, h := range found {
		if Qualifies(h.Result) {
			return h, true
		}
	}
	return Hit{}, false
}

func copyAvailability(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
