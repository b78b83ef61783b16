package domain

import "encoding/json"

// CallShape identifies which of the supported wire encodings an exchange
// carries. The classifier decides the shape; exactly one normalizer handles
// each.
type CallShape string

const (
	// ShapeUnknown means no shape matched; the exchange is dropped.
	ShapeUnknown CallShape = ""

	// ShapeAuraBatch is the batched action envelope on the primary
	// gateway path.
	ShapeAuraBatch CallShape = "aura-batch"

	// ShapeWebruntimeSingle is the single-call execute endpoint used by
	// the alternate web runtime.
	ShapeWebruntimeSingle CallShape = "webruntime"

	// ShapeVfRemoting is the legacy remoting endpoint.
	ShapeVfRemoting CallShape = "vf-remoting"

	// ShapeGraphQL is a GraphQL operation tunneled through the primary
	// gateway path.
	ShapeGraphQL CallShape = "graphql"

	// ShapeUiRecordApi is a record-service call tunneled through the
	// primary gateway path.
	ShapeUiRecordApi CallShape = "ui-record-api"
)

// Placeholder names used when structured extraction fails. Records carrying
// them are kept, flagged, and remain inspectable via their raw fragments.
const (
	UnknownClass  = "[Unknown Class]"
	UnknownMethod = "[Unknown Method]"

	// UnparsedAction marks an action whose params block was missing or
	// not an object at all; UnparsedMethod is its method counterpart.
	UnparsedAction = "[Unparsed] ApexAction"
	UnparsedMethod = "[Unparsed]"
)

// ContextMetadata keys with cross-package meaning.
const (
	// MetaNeedsMapping is set to true when an obfuscated class id had no
	// entry in the class-name mapping; the panel prompts the user for one.
	MetaNeedsMapping = "needsMapping"

	// MetaResolvedFrom carries the opaque id an obfuscated class name was
	// resolved from.
	MetaResolvedFrom = "resolvedFrom"

	// MetaTransactionID carries the remoting transaction id.
	MetaTransactionID = "transactionId"

	// MetaOperationKind carries the GraphQL operation kind.
	MetaOperationKind = "operationKind"

	// MetaOperationName carries the GraphQL operation name, when the
	// query declares one.
	MetaOperationName = "operationName"
)

// CanonicalCallRecord is the normalized, shape-independent representation of
// one logical remote call extracted from an exchange. Records are created by
// a normalizer, stamped with identity by the assigner, appended to the
// session log, and never mutated afterwards.
type CanonicalCallRecord struct {
	// ID is unique within the session. It prefers identifiers embedded in
	// the payload and falls back to "<exchangeID>-<index>".
	ID string `json:"id"`

	// Timestamp is the exchange start in milliseconds since the epoch.
	Timestamp int64 `json:"timestamp"`

	Shape      CallShape `json:"shape"`
	ClassName  string    `json:"className"`
	MethodName string    `json:"methodName"`

	// ElapsedMs is the whole exchange's latency. For batched calls every
	// record carries the same total; per-call latency is not on the wire.
	ElapsedMs float64 `json:"elapsedMs"`

	RequestParams  map[string]any `json:"requestParams,omitempty"`
	ResponseResult map[string]any `json:"responseResult,omitempty"`

	// RawRequestFragment and RawResponseFragment are the shape-specific
	// sub-structures this record was extracted from, kept verbatim for
	// drill-down display and identity probing.
	RawRequestFragment  json.RawMessage `json:"rawRequestFragment,omitempty"`
	RawResponseFragment json.RawMessage `json:"rawResponseFragment,omitempty"`

	// Exchange points back at the full capture for drill-down. It is
	// omitted from the stream payload; the detail endpoint serves it.
	Exchange *RawExchange `json:"-"`

	ContextMetadata map[string]any `json:"contextMetadata,omitempty"`

	// ErrorMessage is non-empty iff the call's outcome was an error.
	ErrorMessage string `json:"errorMessage,omitempty"`

	// BatchID is shared by all records extracted from one exchange that
	// carried more than one call, and empty otherwise.
	BatchID string `json:"batchId,omitempty"`
}

// Failed reports whether the record represents an errored call.
func (r *CanonicalCallRecord) Failed() bool { return r.ErrorMessage != "" }
