// Package validate implements the Content Validator (C4): a heuristic
// classifier telling real conversation payloads apart from unrelated
// key/value entries sharing the same SQLite table. Ported from
// original_source's windsurf/query_validator.py ConversationValidator,
// generalized to the single predicate spec §9 requires ("Consolidate
// in C4 ... extractors call it rather than reimplementing heuristics").
package validate

import (
	"strings"
)

const (
	maxAnalysisLen   = 10_000
	minStrongHits    = 2
	ratioThreshold   = 2.0
	minContentLen    = 5
	maxListItemsScan = 10
)

var strongIndicators = []string{
	"messages", "content", "text", "prompt", "response", "user", "assistant",
	"entries", "conversation", "composer", "session", "cascade", "chat",
}

var falsePositiveIndicators = []string{
	"workbench", "panel", "view", "storage", "settings", "keybinding",
	"layout", "theme", "telemetry", "extension",
}

var contentKeys = map[string]bool{
	"content": true, "text": true, "messages": true, "entries": true,
	"prompt": true, "response": true, "body": true,
}

var messageIndicators = map[string]bool{
	"role": true, "content": true, "text": true, "message": true, "author": true,
}

// IsConversation runs the full C4 predicate against an arbitrary
// decoded JSON value (map[string]interface{} or []interface{}).
func IsConversation(candidate interface{}) bool {
	switch candidate.(type) {
	case map[string]interface{}, []interface{}:
	default:
		return false
	}

	strong, falsePositive := countIndicators(candidate)
	if strong < minStrongHits {
		return false
	}
	if float64(falsePositive) > float64(strong)*ratioThreshold {
		return false
	}

	return hasStructuralMatch(candidate)
}

// countIndicators serializes up to maxAnalysisLen characters of
// candidate (lowercased) and counts strong/false-positive keyword
// hits, recursing through maps and lists exactly as the original does
// via its nested check_data closure.
func countIndicators(candidate interface{}) (strong, falsePositive int) {
	var sb strings.Builder
	walkForIndicators(candidate, &sb)
	text := strings.ToLower(sb.String())
	if len(text) > maxAnalysisLen {
		text = text[:maxAnalysisLen]
	}

	for _, ind := range strongIndicators {
		if strings.Contains(text, ind) {
			strong++
		}
	}
	for _, ind := range falsePositiveIndicators {
		if strings.Contains(text, ind) {
			falsePositive++
		}
	}
	return strong, falsePositive
}

func walkForIndicators(v interface{}, sb *strings.Builder) {
	if sb.Len() > maxAnalysisLen {
		return
	}
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			sb.WriteString(k)
			sb.WriteByte(' ')
			walkForIndicators(val, sb)
		}
	case []interface{}:
		for _, item := range t {
			walkForIndicators(item, sb)
		}
	case string:
		sb.WriteString(t)
		sb.WriteByte(' ')
	}
}

// hasStructuralMatch implements the dict/list structural checks:
// a dict needs a content key resolving to a non-trivial value; a list
// needs at least one of its first maxListItemsScan items to be a dict
// carrying both a content key and a message indicator.
func hasStructuralMatch(candidate interface{}) bool {
	switch t := candidate.(type) {
	case map[string]interface{}:
		return dictHasContent(t)
	case []interface{}:
		return listHasMessage(t)
	default:
		return false
	}
}

func dictHasContent(m map[string]interface{}) bool {
	for k, v := range m {
		if !contentKeys[strings.ToLower(k)] {
			continue
		}
		switch val := v.(type) {
		case string:
			if len(strings.TrimSpace(val)) >= minContentLen {
				return true
			}
		case []interface{}:
			if len(val) > 0 {
				return true
			}
		case map[string]interface{}:
			if len(val) > 0 {
				return true
			}
		}
	}
	return false
}

func listHasMessage(items []interface{}) bool {
	limit := len(items)
	if limit > maxListItemsScan {
		limit = maxListItemsScan
	}
	for i := 0; i < limit; i++ {
		m, ok := items[i].(map[string]interface{})
		if !ok {
			continue
		}
		hasContent, hasMessage := false, false
		for k := range m {
			lk := strings.ToLower(k)
			if contentKeys[lk] {
				hasContent = true
			}
			if messageIndicators[lk] {
				hasMessage = true
			}
		}
		if hasContent && hasMessage {
			return true
		}
	}
	return false
}
