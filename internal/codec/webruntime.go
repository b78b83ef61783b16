package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aurascope/aurascope/internal/domain"
)

var errNoCallDescriptor = errors.New("payload carries no call descriptor")

// webruntimeCall is the request body of a web-runtime Apex execution:
// the call descriptor itself, no batching envelope.
type webruntimeCall struct {
	Namespace  string         `json:"namespace"`
	Classname  string         `json:"classname"`
	ClassName  string         `json:"className"`
	Method     string         `json:"method"`
	MethodName string         `json:"methodName"`
	Params     map[string]any `json:"params"`
	Cacheable  *bool          `json:"cacheable"`
}

// WebruntimeSingle normalizes single-call web-runtime executions.
// Class names on this endpoint may arrive in the obfuscated
// "@token/opaqueId" form and are resolved through the class-name
// mapping when one is loaded.
type WebruntimeSingle struct {
	resolver ClassResolver
	logger   *slog.Logger
}

func NewWebruntimeSingle(resolver ClassResolver, logger *slog.Logger) *WebruntimeSingle {
	return &WebruntimeSingle{
		resolver: resolver,
		logger:   shapeLogger(logger, domain.ShapeWebruntimeSingle),
	}
}

func (n *WebruntimeSingle) Shape() domain.CallShape { return domain.ShapeWebruntimeSingle }

func (n *WebruntimeSingle) Normalize(parsed domain.ParsedExchange, raw *domain.RawExchange) (Result, error) {
	if !parsed.HasRequest() {
		return Result{}, errNoCallDescriptor
	}
	var call webruntimeCall
	if err := json.Unmarshal(parsed.RequestJSON, &call); err != nil {
		return Result{}, fmt.Errorf("decode call descriptor: %w", err)
	}

	rec := newRecord(domain.ShapeWebruntimeSingle, raw)
	rec.RawRequestFragment = parsed.RequestJSON

	class := call.Classname
	if class == "" {
		class = call.ClassName
	}
	method := call.Method
	if method == "" {
		method = call.MethodName
	}
	switch {
	case class == "" && method == "":
		rec.ClassName = domain.UnknownClass
		rec.MethodName = domain.UnknownMethod
		rec.ErrorMessage = "apex class and method missing from call descriptor"
	case obfuscatedClass(class):
		rec.ClassName = n.resolveObfuscated(rec, class)
		rec.MethodName = methodOrPlaceholder(method)
	default:
		rec.ClassName = qualifiedClass(call.Namespace, class)
		rec.MethodName = methodOrPlaceholder(method)
	}

	if call.Params != nil {
		rec.RequestParams = call.Params
	}
	if call.Cacheable != nil {
		rec.ContextMetadata["cacheable"] = *call.Cacheable
	}

	n.applyResponse(rec, parsed)
	return Result{Records: []*domain.CanonicalCallRecord{rec}}, nil
}

// applyResponse surfaces the response body as the result. This shape
// has no action envelope: failure shows up as error fields or an
// isError flag on the response root.
func (n *WebruntimeSingle) applyResponse(rec *domain.CanonicalCallRecord, parsed domain.ParsedExchange) {
	if !parsed.HasResponse() {
		return
	}
	rec.RawResponseFragment = parsed.ResponseJSON
	respMap := decodeMap(parsed.ResponseJSON)
	if respMap == nil {
		return
	}
	rec.ResponseResult = resultMap(respMap)
	isError, _ := respMap["isError"].(bool)
	if isError || signalsFailure(respMap) {
		msg, details := extractError(respMap)
		rec.ErrorMessage = msg
		mergeDetails(rec.ResponseResult, details)
	}
}

// resolveObfuscated translates an "@token/opaqueId" class reference.
// A mapping hit yields the developer-facing name and records where it
// came from; a miss keeps the opaque id visible and flags the record
// so the panel can prompt for a mapping upload.
func (n *WebruntimeSingle) resolveObfuscated(rec *domain.CanonicalCallRecord, class string) string {
	opaque := class[strings.Index(class, "/")+1:]
	if opaque == "" {
		return class
	}
	if n.resolver != nil {
		if name, ok := n.resolver.Resolve(opaque); ok {
			rec.ContextMetadata[domain.MetaResolvedFrom] = opaque
			return name
		}
	}
	rec.ContextMetadata[domain.MetaNeedsMapping] = true
	return opaque
}

// obfuscatedClass reports whether a class reference uses the
// obfuscated "@token/opaqueId" form instead of a plain name.
func obfuscatedClass(class string) bool {
	return strings.HasPrefix(class, "@") && strings.Contains(class, "/")
}

func methodOrPlaceholder(method string) string {
	if method == "" {
		return domain.UnknownMethod
	}
	return method
}
