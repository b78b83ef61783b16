package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aurascope/aurascope/internal/domain"
)

var errNoRemotingCalls = errors.New("payload carries no remoting calls")

// vfCall is one legacy remoting invocation. The wire also sends a ctx
// block of CSRF/view-state plumbing; it is dropped here and never
// reaches a record.
type vfCall struct {
	Action string `json:"action"`
	Method string `json:"method"`
	Data   []any  `json:"data"`
	Type   string `json:"type"`
	Tid    any    `json:"tid"`
}

// VfRemoting normalizes legacy remoting exchanges: the body is either
// one call object or an array of them, answered in the same shape and
// correlated by position.
type VfRemoting struct {
	logger *slog.Logger
}

func NewVfRemoting(logger *slog.Logger) *VfRemoting {
	return &VfRemoting{logger: shapeLogger(logger, domain.ShapeVfRemoting)}
}

func (n *VfRemoting) Shape() domain.CallShape { return domain.ShapeVfRemoting }

func (n *VfRemoting) Normalize(parsed domain.ParsedExchange, raw *domain.RawExchange) (Result, error) {
	if !parsed.HasRequest() {
		return Result{}, errNoRemotingCalls
	}
	entries, _, err := rawList(parsed.RequestJSON)
	if err != nil {
		return Result{}, fmt.Errorf("decode remoting calls: %w", err)
	}

	var respEntries []json.RawMessage
	if parsed.HasResponse() {
		respEntries, _, err = rawList(parsed.ResponseJSON)
		if err != nil {
			n.logger.Debug("remoting response did not decode", "error", err)
		}
	}

	res := Result{Batchable: true}
	for i, entry := range entries {
		var call vfCall
		if err := json.Unmarshal(entry, &call); err != nil {
			n.logger.Debug("skipping undecodable remoting call", "index", i)
			continue
		}
		rec := n.normalizeCall(entry, call, raw)
		if i < len(respEntries) {
			n.applyResponse(rec, respEntries[i])
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func (n *VfRemoting) normalizeCall(entry json.RawMessage, call vfCall, raw *domain.RawExchange) *domain.CanonicalCallRecord {
	rec := newRecord(domain.ShapeVfRemoting, raw)
	rec.RawRequestFragment = entry

	switch {
	case call.Action == "" && call.Method == "":
		rec.ClassName = domain.UnknownClass
		rec.MethodName = domain.UnknownMethod
		rec.ErrorMessage = "remoting call names no action or method"
	default:
		rec.ClassName = call.Action
		if rec.ClassName == "" {
			rec.ClassName = domain.UnknownClass
		}
		rec.MethodName = methodOrPlaceholder(call.Method)
	}

	if call.Data != nil {
		rec.RequestParams["data"] = call.Data
	}
	if call.Type != "" {
		rec.RequestParams["type"] = call.Type
	}
	if call.Tid != nil {
		rec.RequestParams["tid"] = call.Tid
		rec.ContextMetadata[domain.MetaTransactionID] = call.Tid
	}
	return rec
}

// applyResponse fills the result from one remoting response entry.
// The displayed result is the entry's result field when it has one;
// transport wrapping (statusCode, ref flags) stays visible otherwise.
func (n *VfRemoting) applyResponse(rec *domain.CanonicalCallRecord, entry json.RawMessage) {
	rec.RawResponseFragment = entry
	entryMap := decodeMap(entry)
	if entryMap == nil {
		return
	}
	if result, ok := entryMap["result"]; ok {
		rec.ResponseResult = resultMap(result)
	} else {
		rec.ResponseResult = resultMap(entryMap)
	}
	if signalsFailure(entryMap) {
		msg, details := extractError(entryMap)
		rec.ErrorMessage = msg
		mergeDetails(rec.ResponseResult, details)
	}
}
