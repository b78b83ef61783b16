package codec

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/aurascope/aurascope/internal/domain"
)

// perfKeyPattern matches performance-summary action keys that look
// like call identifiers rather than counters or version tags.
var perfKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}$`)

// Assigner stamps identity onto freshly normalized records: a
// per-call id resolved from the wire payload where possible, and a
// shared batch id for multi-call batchable exchanges. IDs are stable
// within a session and meaningless outside it.
type Assigner struct {
	newBatchID func() string
}

func NewAssigner() *Assigner {
	return &Assigner{newBatchID: uuid.NewString}
}

// Stamp assigns ids in place. Each record tries, in order: id then
// actionId on its raw request fragment, the same two fields on its
// raw response fragment, an unclaimed performance-summary key, and
// finally the exchange id suffixed with the record's index.
func (a *Assigner) Stamp(res Result, parsed domain.ParsedExchange, raw *domain.RawExchange) {
	perfKeys := perfSummaryKeys(parsed)
	exchangeID := ""
	if raw != nil {
		exchangeID = raw.ID
	}
	nextPerf := 0
	for i, rec := range res.Records {
		rec.ID = resolveID(rec, perfKeys, &nextPerf, exchangeID, i)
	}
	if res.Batchable && len(res.Records) > 1 {
		batchID := a.newBatchID()
		for _, rec := range res.Records {
			rec.BatchID = batchID
		}
	}
}

func resolveID(rec *domain.CanonicalCallRecord, perfKeys []string, nextPerf *int, exchangeID string, index int) string {
	for _, frag := range []json.RawMessage{rec.RawRequestFragment, rec.RawResponseFragment} {
		for _, key := range []string{"id", "actionId"} {
			if id := fragmentID(frag, key); id != "" {
				return id
			}
		}
	}
	// Perf keys are consumed in sorted order so two fallthrough records
	// in one exchange never collide.
	if *nextPerf < len(perfKeys) {
		id := perfKeys[*nextPerf]
		*nextPerf++
		return id
	}
	return exchangeID + "-" + strconv.Itoa(index)
}

// fragmentID reads a string or numeric identifier field off a raw
// JSON fragment.
func fragmentID(frag json.RawMessage, key string) string {
	if len(frag) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frag, &fields); err != nil {
		return ""
	}
	v, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var num json.Number
	if err := json.Unmarshal(v, &num); err == nil {
		return num.String()
	}
	return ""
}

// perfSummaryKeys lists identifier-shaped keys from the response's
// performance summary, preferring its per-action map over the summary
// root. Sorted for deterministic assignment.
func perfSummaryKeys(parsed domain.ParsedExchange) []string {
	if !parsed.HasResponse() {
		return nil
	}
	var resp auraResponse
	if err := json.Unmarshal(parsed.ResponseJSON, &resp); err != nil {
		return nil
	}
	if len(resp.PerfSummary) == 0 {
		return nil
	}
	var perf map[string]json.RawMessage
	if err := json.Unmarshal(resp.PerfSummary, &perf); err != nil {
		return nil
	}
	source := perf
	if actionsRaw, ok := perf["actions"]; ok {
		var actions map[string]json.RawMessage
		if err := json.Unmarshal(actionsRaw, &actions); err == nil && len(actions) > 0 {
			source = actions
		}
	}
	keys := make([]string, 0, len(source))
	for k := range source {
		if perfKeyPattern.MatchString(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
