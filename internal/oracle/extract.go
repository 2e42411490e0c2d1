package oracle

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONRe = regexp.MustCompile("(?is)```json\\s*(.*?)```")

// ExtractJSON pulls a JSON object out of raw collaborator text. Models that
// are asked for JSON-only output still frequently wrap it in prose or code
// fences, so the extraction ladder is: direct parse, then the outermost
// {...} block, then a fenced ```json block. Returns nil when nothing in the
// text parses.
func ExtractJSON(raw string) json.RawMessage {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}

	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		candidate := s[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate)
		}
	}

	if m := fencedJSONRe.FindStringSubmatch(s); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate)
		}
	}

	return nil
}
