// Package pipeline drives one captured exchange through decode,
// classification, normalization, identity stamping, and the session
// log. Processing is synchronous and infallible from the caller's
// point of view: every failure path ends in a diagnostic log and a
// dropped envelope, or in a placeholder record.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aurascope/aurascope/internal/codec"
	"github.com/aurascope/aurascope/internal/domain"
	"github.com/aurascope/aurascope/internal/payload"
	"github.com/aurascope/aurascope/internal/session"
)

const tracerName = "aurascope"

// Config configures a Processor. All references must be set.
type Config struct {
	Parser   *payload.Parser
	Codecs   *codec.Set
	Assigner *codec.Assigner
	Log      *session.Log
	Logger   *slog.Logger
}

// Processor runs envelopes through the inspection stages. One intake
// goroutine calls Process at a time; two envelopes never interleave
// mid-pipeline.
type Processor struct {
	parser   *payload.Parser
	codecs   *codec.Set
	assigner *codec.Assigner
	log      *session.Log
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New creates a Processor.
func New(cfg Config) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		parser:   cfg.Parser,
		codecs:   cfg.Codecs,
		assigner: cfg.Assigner,
		log:      cfg.Log,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With(slog.String("component", "pipeline")),
	}
}

// Process runs one envelope to completion. Nothing escapes as a panic
// or error; the worst outcome for the caller is a dropped exchange.
func (p *Processor) Process(ctx context.Context, env domain.Envelope) {
	raw := env.Exchange
	if raw == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recovered pipeline panic",
				"exchange_id", raw.ID,
				"url", raw.URL,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	ctx, span := p.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("exchange.id", raw.ID),
		attribute.String("exchange.channel", env.Channel),
	))
	defer span.End()

	parsed := p.parse(ctx, raw)

	shape := p.classify(ctx, raw, parsed)
	if shape == domain.ShapeUnknown {
		p.logger.Debug("exchange did not classify, dropping",
			"exchange_id", raw.ID,
			"url", raw.URL,
		)
		return
	}
	span.SetAttributes(attribute.String("exchange.shape", string(shape)))

	res, ok := p.normalize(ctx, shape, parsed, raw)
	if !ok || len(res.Records) == 0 {
		return
	}

	p.stamp(ctx, res, parsed, raw)
	p.append(ctx, res.Records)
}

func (p *Processor) parse(ctx context.Context, raw *domain.RawExchange) domain.ParsedExchange {
	_, span := p.tracer.Start(ctx, "pipeline.parse")
	defer span.End()
	return p.parser.Parse(raw)
}

func (p *Processor) classify(ctx context.Context, raw *domain.RawExchange, parsed domain.ParsedExchange) domain.CallShape {
	_, span := p.tracer.Start(ctx, "pipeline.classify")
	defer span.End()
	shape := codec.Classify(raw.URL, parsed)
	span.SetAttributes(attribute.String("shape", string(shape)))
	return shape
}

func (p *Processor) normalize(ctx context.Context, shape domain.CallShape, parsed domain.ParsedExchange, raw *domain.RawExchange) (codec.Result, bool) {
	_, span := p.tracer.Start(ctx, "pipeline.normalize")
	defer span.End()

	n, ok := p.codecs.For(shape)
	if !ok {
		p.logger.Debug("no normalizer for shape, dropping",
			"exchange_id", raw.ID,
			"shape", string(shape),
		)
		return codec.Result{}, false
	}
	res, err := n.Normalize(parsed, raw)
	if err != nil {
		span.RecordError(err)
		p.logger.Debug("normalizer rejected exchange",
			"exchange_id", raw.ID,
			"shape", string(shape),
			"error", err,
		)
		return codec.Result{}, false
	}
	span.SetAttributes(attribute.Int("records", len(res.Records)))
	if len(res.Records) == 0 {
		p.logger.Debug("exchange produced no records",
			"exchange_id", raw.ID,
			"shape", string(shape),
		)
	}
	return res, true
}

func (p *Processor) stamp(ctx context.Context, res codec.Result, parsed domain.ParsedExchange, raw *domain.RawExchange) {
	_, span := p.tracer.Start(ctx, "pipeline.stamp")
	defer span.End()
	p.assigner.Stamp(res, parsed, raw)
}

func (p *Processor) append(ctx context.Context, records []*domain.CanonicalCallRecord) {
	_, span := p.tracer.Start(ctx, "pipeline.append")
	defer span.End()
	for _, rec := range records {
		p.log.Append(rec)
	}
	span.SetAttributes(attribute.Int("appended", len(records)))
}
