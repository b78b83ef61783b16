package codec

import (
	"net/url"
	"sort"
	"strings"

	"github.com/aurascope/aurascope/internal/domain"
)

// URL and descriptor markers that identify each wire shape.
const (
	webruntimePathMarker    = "/webruntime/api/apex/execute"
	remotingPathMarker      = "apexremote"
	gatewayPathSegment      = "aura"
	graphQLDescriptorMarker = "GraphQL"
	recordUiDescriptorMark  = "RecordUiController"
	recordUiQueryMarker     = "RecordUi."
)

// Classify decides which wire shape an exchange belongs to. Checks run
// in a fixed order so overlapping markers resolve deterministically:
// the webruntime and remoting endpoints are distinct paths, GraphQL
// and record-service calls ride the shared gateway endpoint and are
// told apart by descriptor or URL method marker, and anything left on
// a gateway path is a plain action batch.
func Classify(rawURL string, parsed domain.ParsedExchange) domain.CallShape {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.ShapeUnknown
	}
	path := u.EscapedPath()
	if strings.Contains(path, webruntimePathMarker) {
		return domain.ShapeWebruntimeSingle
	}
	if strings.Contains(strings.ToLower(path), remotingPathMarker) {
		return domain.ShapeVfRemoting
	}
	descriptors := requestDescriptors(parsed)
	for _, d := range descriptors {
		if strings.Contains(d, graphQLDescriptorMarker) {
			return domain.ShapeGraphQL
		}
	}
	if recordMethodFromURL(u) != "" {
		return domain.ShapeUiRecordApi
	}
	for _, d := range descriptors {
		if strings.Contains(d, recordUiDescriptorMark) {
			return domain.ShapeUiRecordApi
		}
	}
	if hasPathSegment(path, gatewayPathSegment) {
		return domain.ShapeAuraBatch
	}
	return domain.ShapeUnknown
}

// Recognized reports whether the URL points at one of the RPC
// endpoints this package can decode. It is a cheap path-only check
// used by the capture adapter to discard unrelated traffic before
// bodies are parsed; Classify makes the final call once payloads are
// available.
func Recognized(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.EscapedPath()
	if strings.Contains(path, webruntimePathMarker) {
		return true
	}
	if strings.Contains(strings.ToLower(path), remotingPathMarker) {
		return true
	}
	return hasPathSegment(path, gatewayPathSegment)
}

// hasPathSegment reports whether one of the slash-separated path
// segments equals seg exactly. Substring matches ("aurora") do not
// count.
func hasPathSegment(path, seg string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == seg {
			return true
		}
	}
	return false
}

// recordMethodFromURL extracts a record-service method name from the
// exchange URL. Gateway requests advertise the invoked method as a
// query key such as "aura.RecordUi.getRecord=1"; the method is the
// trailing part of that key. Keys are scanned in sorted order so the
// answer is stable when a URL carries several markers.
func recordMethodFromURL(u *url.URL) string {
	query := u.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		idx := strings.Index(key, recordUiQueryMarker)
		if idx < 0 {
			continue
		}
		method := key[idx+len(recordUiQueryMarker):]
		if method != "" && !strings.Contains(method, ".") {
			return method
		}
	}
	return ""
}
