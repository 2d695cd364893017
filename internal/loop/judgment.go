package loop

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Verdict is the reviewer's categorical call on a response.
type Verdict string

const (
	VerdictPass    Verdict = "pass"
	VerdictRevise  Verdict = "revise"
	VerdictFail    Verdict = "fail"
	VerdictUnknown Verdict = "unknown"
	VerdictError   Verdict = "error"
)

// Judgment is the reviewer's structured output. Confidence is always in
// [0, 1]; a missing confidence reads as 0.
type Judgment struct {
	Verdict     Verdict `json:"verdict"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// ParseJudgment turns raw model output into a Judgment. Stage one is a
// strict decode of the whole text. Stage two extracts the first
// balanced-brace substring (models like to wrap JSON in prose or markdown
// fences) and reads its fields permissively. If both fail the result is
// verdict unknown, confidence 0, and the raw text as explanation.
func ParseJudgment(raw string) Judgment {
	trimmed := strings.TrimSpace(raw)

	var j Judgment
	if err := json.Unmarshal([]byte(trimmed), &j); err == nil && j.Verdict != "" {
		return normalize(j)
	}

	if obj := firstJSONObject(trimmed); obj != "" && gjson.Valid(obj) {
		j = Judgment{
			Verdict:     Verdict(gjson.Get(obj, "verdict").String()),
			Confidence:  gjson.Get(obj, "confidence").Float(),
			Explanation: gjson.Get(obj, "explanation").String(),
		}
		if j.Verdict != "" {
			return normalize(j)
		}
	}

	return Judgment{Verdict: VerdictUnknown, Confidence: 0, Explanation: raw}
}

// firstJSONObject returns the first balanced-brace substring, or "".
// Braces inside JSON strings are accounted for.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func normalize(j Judgment) Judgment {
	switch j.Verdict {
	case VerdictPass, VerdictRevise, VerdictFail, VerdictUnknown, VerdictError:
	default:
		j.Verdict = VerdictUnknown
	}
	if j.Confidence < 0 {
		j.Confidence = 0
	}
	if j.Confidence > 1 {
		j.Confidence = 1
	}
	return j
}
