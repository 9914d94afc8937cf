package contracts

import (
	"sort"
	"strings"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/tauerrors"
)

var memorySupportedErrors = map[string]bool{
	"empty_query":            true,
	"invalid_payload":        true,
	"missing_required_field": true,
}

// MemoryEntry is one candidate record the memory runtime's retrieval
// ranking scores against a query.
type MemoryEntry struct {
	MemoryID         string   `json:"memory_id"`
	Summary          string   `json:"summary"`
	Facts            []string `json:"facts,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	RecencyWeightBps int      `json:"recency_weight_bps"`
	ConfidenceBps    int      `json:"confidence_bps"`
}

// scoreEntry implements spec §4.3's memory retrieval ranking score:
// +2 per query token substring match in summary, +1 in facts, +3 in
// tags.
func scoreEntry(queryTokens []string, e MemoryEntry) int {
	score := 0
	lowerSummary := strings.ToLower(e.Summary)
	for _, raw := range queryTokens {
		tok := strings.ToLower(strings.TrimSpace(raw))
		if tok == "" {
			continue
		}
		if strings.Contains(lowerSummary, tok) {
			score += 2
		}
		for _, fact := range e.Facts {
			if strings.Contains(strings.ToLower(fact), tok) {
				score++
			}
		}
		for _, tag := range e.Tags {
			if strings.Contains(strings.ToLower(tag), tok) {
				score += 3
			}
		}
	}
	return score
}

// RankMemoryEntries scores every entry against queryTokens and returns
// the top retrievalLimit entries ordered by score desc, then
// recency_weight_bps desc, confidence_bps desc, memory_id asc.
func RankMemoryEntries(queryTokens []string, entries []MemoryEntry, retrievalLimit int) []MemoryEntry {
	type scored struct {
		entry MemoryEntry
		score int
	}
	ranked := make([]scored, len(entries))
	for i, e := range entries {
		ranked[i] = scored{entry: e, score: scoreEntry(queryTokens, e)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.entry.RecencyWeightBps != b.entry.RecencyWeightBps {
			return a.entry.RecencyWeightBps > b.entry.RecencyWeightBps
		}
		if a.entry.ConfidenceBps != b.entry.ConfidenceBps {
			return a.entry.ConfidenceBps > b.entry.ConfidenceBps
		}
		return a.entry.MemoryID < b.entry.MemoryID
	})

	if retrievalLimit > 0 && len(ranked) > retrievalLimit {
		ranked = ranked[:retrievalLimit]
	}

	out := make([]MemoryEntry, len(ranked))
	for i, r := range ranked {
		out[i] = r.entry
	}
	return out
}

// MemoryValidator requires retrieve-success cases to carry non-empty
// prior_entries, per spec §4.3.
type MemoryValidator struct{}

func (MemoryValidator) SupportedErrorCodes() map[string]bool { return memorySupportedErrors }

func (MemoryValidator) ValidateCaseFields(c ContractCase) error {
	if c.ExpectedOutcome != channel.OutcomeSuccess {
		return nil
	}
	if strings.EqualFold(stringField(c.Fields, "operation"), "retrieve") {
		if len(sliceField(c.Fields, "prior_entries")) == 0 {
			return tauerrors.Newf(tauerrors.CodeMissingField, "memory case %q: retrieve-success cases require non-empty prior_entries", c.CaseID)
		}
	}
	return nil
}

func memoryResponse(c channel.Case) (any, error) {
	operation := strings.ToLower(strings.TrimSpace(stringField(c.Payload, "operation")))
	if operation != "retrieve" {
		return map[string]any{"operation": operation, "stored": true}, nil
	}

	query := stringField(c.Payload, "query")
	tokens := strings.Fields(query)
	limit := 5
	if raw, ok := c.Payload["retrieval_limit"]; ok {
		if n, ok := raw.(int); ok && n > 0 {
			limit = n
		} else if f, ok := raw.(float64); ok && f > 0 {
			limit = int(f)
		}
	}

	var entries []MemoryEntry
	for _, raw := range sliceField(c.Payload, "prior_entries") {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		entries = append(entries, decodeMemoryEntry(m))
	}

	ranked := RankMemoryEntries(tokens, entries, limit)
	return map[string]any{
		"operation": operation,
		"query":     query,
		"results":   ranked,
	}, nil
}

func decodeMemoryEntry(m map[string]any) MemoryEntry {
	e := MemoryEntry{
		MemoryID: stringField(m, "memory_id"),
		Summary:  stringField(m, "summary"),
	}
	for _, v := range sliceField(m, "facts") {
		if s, ok := v.(string); ok {
			e.Facts = append(e.Facts, s)
		}
	}
	for _, v := range sliceField(m, "tags") {
		if s, ok := v.(string); ok {
			e.Tags = append(e.Tags, s)
		}
	}
	if v, ok := m["recency_weight_bps"].(float64); ok {
		e.RecencyWeightBps = int(v)
	}
	if v, ok := m["confidence_bps"].(float64); ok {
		e.ConfidenceBps = int(v)
	}
	return e
}

// NewMemoryEvaluator builds the memory domain's replay evaluator.
func NewMemoryEvaluator() DomainEvaluator {
	return DomainEvaluator{Domain: "memory", BuildResponse: memoryResponse}
}
