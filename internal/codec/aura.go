package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aurascope/aurascope/internal/domain"
)

// apexActionDescriptor marks a gateway action entry that executes an
// Apex method. Entries with other descriptors are framework
// bookkeeping and produce no records.
const apexActionDescriptor = "ApexActionController/ACTION$execute"

var errNoActions = errors.New("payload carries no actions array")

// apexActionParams is the params block of an Apex execution action.
// The wire uses two spellings for both the class and the method field
// depending on component generation.
type apexActionParams struct {
	Namespace      string         `json:"namespace"`
	Classname      string         `json:"classname"`
	ClassName      string         `json:"className"`
	Method         string         `json:"method"`
	MethodName     string         `json:"methodName"`
	Params         map[string]any `json:"params"`
	Cacheable      *bool          `json:"cacheable"`
	IsContinuation bool           `json:"isContinuation"`
}

// AuraBatch normalizes gateway action batches: one request envelope
// holding several actions, answered by a positionally parallel list of
// response entries.
type AuraBatch struct {
	logger *slog.Logger
}

func NewAuraBatch(logger *slog.Logger) *AuraBatch {
	return &AuraBatch{logger: shapeLogger(logger, domain.ShapeAuraBatch)}
}

func (n *AuraBatch) Shape() domain.CallShape { return domain.ShapeAuraBatch }

func (n *AuraBatch) Normalize(parsed domain.ParsedExchange, raw *domain.RawExchange) (Result, error) {
	if !parsed.HasRequest() {
		return Result{}, errNoActions
	}
	var msg auraMessage
	if err := json.Unmarshal(parsed.RequestJSON, &msg); err != nil {
		return Result{}, fmt.Errorf("decode action batch: %w", err)
	}
	if msg.Actions == nil {
		return Result{}, errNoActions
	}

	res := Result{Batchable: true}
	for i, entry := range msg.Actions {
		var action auraAction
		if err := json.Unmarshal(entry, &action); err != nil {
			n.logger.Debug("skipping undecodable action entry", "index", i)
			continue
		}
		if !strings.Contains(action.Descriptor, apexActionDescriptor) {
			continue
		}
		res.Records = append(res.Records, n.normalizeAction(entry, action, i, parsed, raw))
	}
	return res, nil
}

// normalizeAction builds the record for one qualifying action. The
// response entry is matched by the action's position in the full
// request list, bookkeeping entries included.
func (n *AuraBatch) normalizeAction(entry json.RawMessage, action auraAction, index int, parsed domain.ParsedExchange, raw *domain.RawExchange) *domain.CanonicalCallRecord {
	rec := newRecord(domain.ShapeAuraBatch, raw)
	rec.RawRequestFragment = entry
	if action.CallingDescriptor != "" {
		rec.ContextMetadata["callingDescriptor"] = action.CallingDescriptor
	}

	n.applyNames(rec, action.Params)

	if respEntry, ok := responseEntry(parsed, index); ok {
		applyEntryResult(rec, respEntry)
	}
	return rec
}

// applyNames fills ClassName, MethodName, and RequestParams from the
// action's params block, degrading to placeholders when the block is
// missing or uses none of the known field spellings.
func (n *AuraBatch) applyNames(rec *domain.CanonicalCallRecord, params json.RawMessage) {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		rec.ClassName = domain.UnparsedAction
		rec.MethodName = domain.UnparsedMethod
		rec.ErrorMessage = "action params block is missing"
		return
	}
	var p apexActionParams
	if err := json.Unmarshal(trimmed, &p); err != nil {
		n.logger.Debug("action params did not decode", "error", err)
		rec.ClassName = domain.UnparsedAction
		rec.MethodName = domain.UnparsedMethod
		rec.ErrorMessage = "action params block is not an object"
		return
	}

	class := p.Classname
	if class == "" {
		class = p.ClassName
	}
	method := p.Method
	if method == "" {
		method = p.MethodName
	}
	if class == "" && method == "" {
		rec.ClassName = domain.UnknownClass
		rec.MethodName = domain.UnknownMethod
		rec.ErrorMessage = "apex class and method missing from action params"
	} else {
		rec.ClassName = qualifiedClass(p.Namespace, class)
		rec.MethodName = method
		if method == "" {
			rec.MethodName = domain.UnknownMethod
		}
	}

	if p.Params != nil {
		rec.RequestParams = p.Params
	}
	if p.Cacheable != nil {
		rec.ContextMetadata["cacheable"] = *p.Cacheable
	}
	if p.IsContinuation {
		rec.ContextMetadata["isContinuation"] = true
	}
}

// qualifiedClass joins a namespace onto a resolved class name. The
// placeholder class never gets a namespace prefix.
func qualifiedClass(namespace, class string) string {
	if class == "" {
		return domain.UnknownClass
	}
	if namespace == "" {
		return class
	}
	return namespace + "." + class
}

// applyEntryResult sets the result mapping and failure fields from one
// gateway response entry. The result is the entry's returnValue when
// it has one, otherwise the whole entry; error details merge in on top
// of any partial result.
func applyEntryResult(rec *domain.CanonicalCallRecord, entry json.RawMessage) {
	rec.RawResponseFragment = entry
	entryMap := decodeMap(entry)

	var typed auraResponseAction
	if err := json.Unmarshal(entry, &typed); err == nil && typed.State != "" {
		rec.ContextMetadata["state"] = typed.State
	}

	if entryMap != nil {
		if rv, ok := entryMap["returnValue"]; ok {
			rec.ResponseResult = resultMap(rv)
		} else {
			rec.ResponseResult = resultMap(entryMap)
		}
	}
	if failedState(typed.State) {
		msg, details := extractError(entryMap)
		rec.ErrorMessage = msg
		mergeDetails(rec.ResponseResult, details)
	}
}
