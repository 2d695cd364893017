package loop

import "testing"

func TestParseJudgmentStrictJSON(t *testing.T) {
	j := ParseJudgment(`{"verdict": "pass", "confidence": 0.92, "explanation": "solid answer"}`)
	if j.Verdict != VerdictPass {
		t.Errorf("expected pass, got %q", j.Verdict)
	}
	if j.Confidence != 0.92 {
		t.Errorf("expected 0.92, got %v", j.Confidence)
	}
	if j.Explanation != "solid answer" {
		t.Errorf("unexpected explanation %q", j.Explanation)
	}
}

func TestParseJudgmentMarkdownFenced(t *testing.T) {
	raw := "Here is my evaluation:\n```json\n{\"verdict\": \"revise\", \"confidence\": 0.4, \"explanation\": \"too vague\"}\n```\nHope that helps!"
	j := ParseJudgment(raw)
	if j.Verdict != VerdictRevise {
		t.Errorf("expected revise, got %q", j.Verdict)
	}
	if j.Confidence != 0.4 {
		t.Errorf("expected 0.4, got %v", j.Confidence)
	}
}

func TestParseJudgmentProseWrapped(t *testing.T) {
	raw := `After careful review I conclude {"verdict": "fail", "confidence": 0.1, "explanation": "wrong"} as stated.`
	j := ParseJudgment(raw)
	if j.Verdict != VerdictFail {
		t.Errorf("expected fail, got %q", j.Verdict)
	}
}

func TestParseJudgmentBracesInsideStrings(t *testing.T) {
	raw := `{"verdict": "pass", "confidence": 0.9, "explanation": "uses {braces} and \"quotes\" correctly"}`
	j := ParseJudgment(raw)
	if j.Verdict != VerdictPass {
		t.Errorf("expected pass, got %q", j.Verdict)
	}
	if j.Explanation != `uses {braces} and "quotes" correctly` {
		t.Errorf("unexpected explanation %q", j.Explanation)
	}
}

func TestParseJudgmentNoObject(t *testing.T) {
	raw := "I think the answer is fine but I cannot produce JSON today."
	j := ParseJudgment(raw)
	if j.Verdict != VerdictUnknown {
		t.Errorf("expected unknown, got %q", j.Verdict)
	}
	if j.Confidence != 0 {
		t.Errorf("expected confidence 0, got %v", j.Confidence)
	}
	if j.Explanation != raw {
		t.Errorf("explanation must carry the raw text, got %q", j.Explanation)
	}
}

func TestParseJudgmentMissingConfidence(t *testing.T) {
	j := ParseJudgment(`{"verdict": "pass", "explanation": "ok"}`)
	if j.Confidence != 0 {
		t.Errorf("missing confidence must read as 0, got %v", j.Confidence)
	}
}

func TestParseJudgmentClampsConfidence(t *testing.T) {
	if j := ParseJudgment(`{"verdict": "pass", "confidence": 1.7, "explanation": ""}`); j.Confidence != 1 {
		t.Errorf("expected clamp to 1, got %v", j.Confidence)
	}
	if j := ParseJudgment(`{"verdict": "fail", "confidence": -0.3, "explanation": ""}`); j.Confidence != 0 {
		t.Errorf("expected clamp to 0, got %v", j.Confidence)
	}
}

func TestParseJudgmentUnknownVerdictValue(t *testing.T) {
	j := ParseJudgment(`{"verdict": "excellent", "confidence": 0.8, "explanation": "made up verdict"}`)
	if j.Verdict != VerdictUnknown {
		t.Errorf("out-of-set verdict must normalize to unknown, got %q", j.Verdict)
	}
}

func TestFirstJSONObjectUnbalanced(t *testing.T) {
	if got := firstJSONObject(`{"verdict": "pass"`); got != "" {
		t.Errorf("unbalanced braces must return empty, got %q", got)
	}
	if got := firstJSONObject("no braces at all"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
