// Package domain holds the canonical types shared across the inspection
// pipeline: the raw HTTP exchange as delivered by the capture bridge, the
// intermediate parse product, and the normalized call record the panel
// consumes.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Header is one request or response header. Order and duplicates are
// preserved exactly as captured.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered header list.
type Headers []Header

// Get returns the value of the first header matching name
// (case-insensitive), or "" if absent.
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// TimingBreakdown carries the per-phase durations reported by the browser,
// in milliseconds. Negative values mean the phase did not occur.
type TimingBreakdown struct {
	Blocked float64 `json:"blocked"`
	DNS     float64 `json:"dns"`
	Connect float64 `json:"connect"`
	SSL     float64 `json:"ssl"`
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// StackFrame is one initiator call-stack frame.
type StackFrame struct {
	FunctionName string `json:"functionName"`
	URL          string `json:"url"`
	LineNumber   int    `json:"lineNumber"`
}

// RawExchange is one completed HTTP request/response pair as captured by the
// browser. It is immutable once it enters the pipeline; everything derived
// from it (ParsedExchange, call records) holds read-only references back to
// it.
type RawExchange struct {
	// ID is assigned at intake and is unique within the session.
	ID string `json:"id"`

	URL    string `json:"url"`
	Method string `json:"method"`
	Status int    `json:"status"`

	RequestHeaders  Headers `json:"requestHeaders,omitempty"`
	ResponseHeaders Headers `json:"responseHeaders,omitempty"`

	// RequestMimeType and ResponseMimeType are the content types the
	// browser declared for each body, not sniffed ones.
	RequestMimeType  string `json:"requestMimeType,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`

	RequestBody  string `json:"requestBody,omitempty"`
	ResponseBody string `json:"responseBody,omitempty"`

	// BodyRef, when set, names a body the bridge holds and the adapter
	// must fetch before the exchange is processed.
	BodyRef string `json:"bodyRef,omitempty"`

	StartedAt time.Time        `json:"startedAt"`
	ElapsedMs float64          `json:"elapsedMs"`
	Timing    *TimingBreakdown `json:"timing,omitempty"`
	Initiator []StackFrame     `json:"initiator,omitempty"`
}

// Envelope is the unit the capture adapter hands to the pipeline: one
// exchange plus the channel (inspected tab/page) it was observed on.
type Envelope struct {
	Channel  string       `json:"channel"`
	Exchange *RawExchange `json:"exchange"`
}

// ParsedExchange is the decode product of the payload parser. A nil field
// means parsing was not attempted or failed; the distinction is deliberately
// not recorded because downstream treats both the same way.
type ParsedExchange struct {
	RequestJSON  json.RawMessage
	ResponseJSON json.RawMessage
}

// HasRequest reports whether the request body decoded to JSON.
func (p ParsedExchange) HasRequest() bool { return len(p.RequestJSON) > 0 }

// HasResponse reports whether the response body decoded to JSON.
func (p ParsedExchange) HasResponse() bool { return len(p.ResponseJSON) > 0 }
