// Package codec converts parsed wire payloads into canonical call
// records. Each supported wire shape has a Normalizer that understands
// its request/response framing; Classify picks the shape for an
// exchange and Set dispatches to the right normalizer.
package codec

import (
	"encoding/json"
	"log/slog"

	"github.com/aurascope/aurascope/internal/domain"
)

// ClassResolver maps an opaque class identifier to a developer-facing
// class name. A nil resolver never resolves.
type ClassResolver interface {
	Resolve(id string) (string, bool)
}

// Result is the outcome of normalizing one exchange.
type Result struct {
	// Records holds one canonical record per logical call found in the
	// exchange. May be empty when the payload contains no actionable
	// calls.
	Records []*domain.CanonicalCallRecord

	// Batchable reports whether this shape groups several calls into a
	// single exchange. Only batchable results receive a shared batch id
	// when they carry more than one record.
	Batchable bool
}

// Normalizer decodes one wire shape into canonical call records.
//
// Normalize must not mutate parsed or raw. It returns an error only
// when the shape-specific structure is entirely absent; partially
// decodable payloads degrade to placeholder names instead.
type Normalizer interface {
	Shape() domain.CallShape
	Normalize(parsed domain.ParsedExchange, raw *domain.RawExchange) (Result, error)
}

// Set holds the normalizers for every supported shape.
type Set struct {
	normalizers map[domain.CallShape]Normalizer
}

// NewSet builds the full normalizer set. The resolver is used by the
// webruntime normalizer to translate obfuscated class tokens.
func NewSet(resolver ClassResolver, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Set{normalizers: make(map[domain.CallShape]Normalizer)}
	for _, n := range []Normalizer{
		NewAuraBatch(logger),
		NewWebruntimeSingle(resolver, logger),
		NewVfRemoting(logger),
		NewGraphQL(logger),
		NewUiRecordApi(logger),
	} {
		s.normalizers[n.Shape()] = n
	}
	return s
}

// For returns the normalizer registered for shape.
func (s *Set) For(shape domain.CallShape) (Normalizer, bool) {
	n, ok := s.normalizers[shape]
	return n, ok
}

// newRecord seeds a record with the fields every shape fills the same
// way: shape tag, exchange timing, and the back-reference to the raw
// exchange.
func newRecord(shape domain.CallShape, raw *domain.RawExchange) *domain.CanonicalCallRecord {
	rec := &domain.CanonicalCallRecord{
		Shape:           shape,
		RequestParams:   map[string]any{},
		ResponseResult:  map[string]any{},
		ContextMetadata: map[string]any{},
	}
	if raw != nil {
		rec.Timestamp = raw.StartedAt.UnixMilli()
		rec.ElapsedMs = raw.ElapsedMs
		rec.Exchange = raw
	}
	return rec
}

// resultMap lifts an arbitrary return value into the record's result
// mapping. Maps are copied key-for-key; any other non-nil value is
// wrapped under a "returnValue" key so scalar and list results stay
// visible.
func resultMap(v any) map[string]any {
	out := map[string]any{}
	switch rv := v.(type) {
	case nil:
	case map[string]any:
		for k, val := range rv {
			out[k] = val
		}
	default:
		out["returnValue"] = rv
	}
	return out
}

// mergeDetails folds extracted error details into a result mapping.
// Detail fields win on key collision so the failure explanation is
// never masked by a stale partial result.
func mergeDetails(result, details map[string]any) {
	for k, v := range details {
		result[k] = v
	}
}

// shapeLogger derives a per-normalizer logger. A nil base falls back
// to the process default so normalizers are safe to construct bare in
// tests.
func shapeLogger(logger *slog.Logger, shape domain.CallShape) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("shape", string(shape))
}

// decodeMap unmarshals raw into a generic string-keyed map. Returns
// nil when raw is empty, null, or not a JSON object.
func decodeMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
