// Package capture adapts the capture bridge's event feed to the
// inspection pipeline. It filters traffic down to the RPC endpoints the
// codecs understand, resolves deferred response bodies through the
// bridge, and buffers envelopes while no display surface is attached.
package capture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/aurascope/aurascope/internal/codec"
	"github.com/aurascope/aurascope/internal/domain"
)

const defaultPendingCapacity = 512

// Sink consumes envelopes the adapter admits. The pipeline implements
// this; processing failures stay inside the sink and never propagate
// back to intake.
type Sink interface {
	Process(ctx context.Context, env domain.Envelope)
}

// BodyFetcher retrieves a response body the bridge held back from the
// envelope. The bridge client implements this.
type BodyFetcher interface {
	FetchBody(ctx context.Context, ref string) (string, error)
}

// Stats is a point-in-time snapshot of adapter state, served by the
// status endpoint.
type Stats struct {
	Attached int    `json:"attached"`
	Pending  int    `json:"pending"`
	Accepted uint64 `json:"accepted"`
	Ignored  uint64 `json:"ignored"`
	Dropped  uint64 `json:"dropped"`
}

// Config configures an Adapter.
type Config struct {
	Sink   Sink
	Bodies BodyFetcher
	Logger *slog.Logger

	// PendingCapacity bounds the buffer used while no surface is
	// attached. Zero or negative selects the default.
	PendingCapacity int
}

// Adapter is the event source feeding the pipeline. Envelopes arrive
// one at a time from the intake handler; the mutex serializes them
// against surface attach/detach so drained and live envelopes keep
// arrival order.
type Adapter struct {
	sink     Sink
	bodies   BodyFetcher
	capacity int
	logger   *slog.Logger

	mu       sync.Mutex
	pending  []domain.Envelope
	attached int
	accepted uint64
	ignored  uint64
	dropped  uint64
}

// New creates an Adapter. cfg.Sink must be set; cfg.Bodies may be nil
// when the bridge holds no bodies back.
func New(cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	capacity := cfg.PendingCapacity
	if capacity <= 0 {
		capacity = defaultPendingCapacity
	}
	return &Adapter{
		sink:     cfg.Sink,
		bodies:   cfg.Bodies,
		capacity: capacity,
		logger:   logger,
	}
}

// Offer hands one captured exchange to the adapter. Unrecognized
// endpoints are discarded, deferred bodies are fetched, and the
// envelope is then delivered to the pipeline or buffered until a
// surface attaches. ctx governs only the body fetch; once admitted an
// envelope is processed to completion.
func (a *Adapter) Offer(ctx context.Context, env domain.Envelope) {
	ex := env.Exchange
	if ex == nil {
		a.logger.Debug("discarding envelope without exchange", "channel", env.Channel)
		return
	}
	if !codec.Recognized(ex.URL) {
		a.mu.Lock()
		a.ignored++
		a.mu.Unlock()
		a.logger.Debug("ignoring exchange outside inspected endpoints",
			"channel", env.Channel,
			"url", ex.URL,
		)
		return
	}
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.ResponseBody == "" && ex.BodyRef != "" {
		if !a.fetchBody(ctx, env) {
			return
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.accepted++
	if a.attached > 0 {
		a.sink.Process(context.WithoutCancel(ctx), env)
		return
	}
	if len(a.pending) >= a.capacity {
		evicted := a.pending[0]
		a.pending = a.pending[1:]
		a.dropped++
		a.logger.Warn("pending buffer full, evicting oldest exchange",
			"exchange_id", evicted.Exchange.ID,
			"capacity", a.capacity,
		)
	}
	a.pending = append(a.pending, env)
}

// fetchBody pulls the deferred response body from the bridge and fills
// it into the exchange. A failed fetch drops the exchange.
func (a *Adapter) fetchBody(ctx context.Context, env domain.Envelope) bool {
	ex := env.Exchange
	if a.bodies == nil {
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
		a.logger.Warn("no body fetcher configured, dropping exchange",
			"exchange_id", ex.ID,
			"body_ref", ex.BodyRef,
		)
		return false
	}
	body, err := a.bodies.FetchBody(ctx, ex.BodyRef)
	if err != nil {
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
		a.logger.Warn("body fetch failed, dropping exchange",
			"exchange_id", ex.ID,
			"body_ref", ex.BodyRef,
			"error", err,
		)
		return false
	}
	ex.ResponseBody = body
	return true
}

// Attach registers a display surface. The first surface drains the
// pending buffer into the pipeline in arrival order; envelopes offered
// afterwards flow through live.
func (a *Adapter) Attach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attached++
	if a.attached > 1 {
		return
	}
	if len(a.pending) == 0 {
		return
	}
	a.logger.Info("surface attached, draining pending exchanges", "pending", len(a.pending))
	for _, env := range a.pending {
		a.sink.Process(context.Background(), env)
	}
	a.pending = nil
}

// Detach unregisters a display surface. When the last one is gone the
// adapter resumes buffering.
func (a *Adapter) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attached == 0 {
		a.logger.Debug("detach without matching attach")
		return
	}
	a.attached--
	if a.attached == 0 {
		a.logger.Debug("last surface detached, buffering resumes")
	}
}

// Stats reports the adapter's current counters.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Attached: a.attached,
		Pending:  len(a.pending),
		Accepted: a.accepted,
		Ignored:  a.ignored,
		Dropped:  a.dropped,
	}
}
