package codec

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/aurascope/aurascope/internal/domain"
)

// recordApiClassName is the fixed class marker for record-service
// calls; the method name carries the identity.
const recordApiClassName = "RecordUi"

const createRecordMethod = "createRecord"

// UiRecordApi normalizes record-service gateway exchanges. These are
// framework-issued record reads and writes: one logical call per
// exchange, identified by a URL method marker or a record-service
// controller descriptor.
type UiRecordApi struct {
	logger *slog.Logger
}

func NewUiRecordApi(logger *slog.Logger) *UiRecordApi {
	return &UiRecordApi{logger: shapeLogger(logger, domain.ShapeUiRecordApi)}
}

func (n *UiRecordApi) Shape() domain.CallShape { return domain.ShapeUiRecordApi }

func (n *UiRecordApi) Normalize(parsed domain.ParsedExchange, raw *domain.RawExchange) (Result, error) {
	rec := newRecord(domain.ShapeUiRecordApi, raw)
	rec.ClassName = recordApiClassName

	method := ""
	if raw != nil {
		if u, err := url.Parse(raw.URL); err == nil {
			method = recordMethodFromURL(u)
		}
	}

	entry, action := n.chooseAction(parsed)
	if method == "" && action != nil {
		method = methodFromDescriptor(action.Descriptor)
	}
	rec.MethodName = methodOrPlaceholder(method)

	if action != nil {
		rec.RawRequestFragment = entry
		n.applyParams(rec, decodeMap(action.Params), method)
	}

	if respEntry, ok := responseEntry(parsed, 0); ok {
		applyEntryResult(rec, respEntry)
	} else if parsed.HasResponse() {
		rec.RawResponseFragment = parsed.ResponseJSON
		if respMap := decodeMap(parsed.ResponseJSON); respMap != nil {
			rec.ResponseResult = resultMap(respMap)
		}
	}

	return Result{Records: []*domain.CanonicalCallRecord{rec}}, nil
}

// chooseAction picks the request action describing the record call:
// the first entry naming the record-service controller, else the first
// entry outright.
func (n *UiRecordApi) chooseAction(parsed domain.ParsedExchange) (json.RawMessage, *auraAction) {
	if !parsed.HasRequest() {
		return nil, nil
	}
	var msg auraMessage
	if err := json.Unmarshal(parsed.RequestJSON, &msg); err != nil {
		return nil, nil
	}
	var firstEntry json.RawMessage
	var firstAction *auraAction
	for i, entry := range msg.Actions {
		var action auraAction
		if err := json.Unmarshal(entry, &action); err != nil {
			n.logger.Debug("skipping undecodable action entry", "index", i)
			continue
		}
		if strings.Contains(action.Descriptor, recordUiDescriptorMark) {
			return entry, &action
		}
		if firstAction == nil {
			firstEntry, firstAction = entry, &action
		}
	}
	return firstEntry, firstAction
}

// applyParams extracts the call parameters. Record creation nests its
// payload inside recordInput, where only the target object and the
// touched field names are worth surfacing; every other method passes
// flat lookup keys.
func (n *UiRecordApi) applyParams(rec *domain.CanonicalCallRecord, params map[string]any, method string) {
	if params == nil {
		return
	}
	if method == createRecordMethod {
		if ri, ok := params["recordInput"].(map[string]any); ok {
			if apiName, ok := ri["apiName"].(string); ok && apiName != "" {
				rec.RequestParams["apiName"] = apiName
			}
			if fields, ok := ri["fields"].(map[string]any); ok {
				names := make([]string, 0, len(fields))
				for name := range fields {
					names = append(names, name)
				}
				sort.Strings(names)
				rec.RequestParams["fields"] = names
			}
			return
		}
	}
	for _, key := range []string{"recordId", "fields", "layoutType", "modes", "recordTypeId"} {
		if v, ok := params[key]; ok && v != nil {
			rec.RequestParams[key] = v
		}
	}
}

// methodFromDescriptor pulls the method name off a controller
// descriptor's action suffix.
func methodFromDescriptor(descriptor string) string {
	idx := strings.LastIndex(descriptor, "ACTION$")
	if idx < 0 {
		return ""
	}
	return descriptor[idx+len("ACTION$"):]
}
