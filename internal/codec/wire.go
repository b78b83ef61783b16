package codec

import (
	"bytes"
	"encoding/json"

	"github.com/aurascope/aurascope/internal/domain"
)

// Wire-level framing shared by the gateway-style shapes. These structs
// decode only the envelope fields the normalizers need; everything
// else stays in the raw fragments attached to each record.

// auraMessage is the request envelope: a list of action entries.
type auraMessage struct {
	Actions []json.RawMessage `json:"actions"`
}

// auraAction is one request-side action entry.
type auraAction struct {
	ID                string          `json:"id"`
	Descriptor        string          `json:"descriptor"`
	CallingDescriptor string          `json:"callingDescriptor"`
	Params            json.RawMessage `json:"params"`
}

// auraResponse is the response envelope. The actions list is
// positionally parallel to the request's list; perfSummary keys can
// stand in for missing action ids.
type auraResponse struct {
	Actions     []json.RawMessage `json:"actions"`
	PerfSummary json.RawMessage   `json:"perfSummary"`
}

// auraResponseAction is one response-side action entry.
type auraResponseAction struct {
	ID          string          `json:"id"`
	State       string          `json:"state"`
	ReturnValue json.RawMessage `json:"returnValue"`
}

// Response states that mark a call as failed. An interrupted call
// carries no usable result, so it is surfaced the same way as an
// explicit error.
const (
	stateError      = "ERROR"
	stateIncomplete = "INCOMPLETE"
)

func failedState(state string) bool {
	return state == stateError || state == stateIncomplete
}

// rawList splits a JSON value into entries: arrays yield their
// elements, a single object yields itself. The second return reports
// whether the value was an array.
func rawList(raw json.RawMessage) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, nil
	}
	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, true, err
		}
		return list, true, nil
	}
	var single json.RawMessage
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, false, err
	}
	return []json.RawMessage{single}, false, nil
}

// requestDescriptors lists the descriptor strings of every action in a
// gateway-style request, in order. Entries without a descriptor come
// back as empty strings so indexes stay aligned.
func requestDescriptors(parsed domain.ParsedExchange) []string {
	if !parsed.HasRequest() {
		return nil
	}
	var msg auraMessage
	if err := json.Unmarshal(parsed.RequestJSON, &msg); err != nil {
		return nil
	}
	out := make([]string, 0, len(msg.Actions))
	for _, entry := range msg.Actions {
		var action auraAction
		if err := json.Unmarshal(entry, &action); err != nil {
			out = append(out, "")
			continue
		}
		out = append(out, action.Descriptor)
	}
	return out
}

// responseEntry returns the i-th response action when the response
// decodes and has that many entries.
func responseEntry(parsed domain.ParsedExchange, i int) (json.RawMessage, bool) {
	if !parsed.HasResponse() {
		return nil, false
	}
	var resp auraResponse
	if err := json.Unmarshal(parsed.ResponseJSON, &resp); err != nil {
		return nil, false
	}
	if i < 0 || i >= len(resp.Actions) {
		return nil, false
	}
	return resp.Actions[i], true
}
