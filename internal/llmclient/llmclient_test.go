package llmclient

import "testing"

func TestExtractJSONPlain(t *testing.T) {
	got := ExtractJSON(`{"a": 1}`)
	if got != `{"a": 1}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONFenced(t *testing.T) {
	raw := "```json\n{\"a\": 1, \"b\": [1,2,3]}\n```"
	got := ExtractJSON(raw)
	if got != `{"a": 1, "b": [1,2,3]}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONWithCommentary(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"verdict\": \"aware\"}\n```\nLet me know if you need more."
	got := ExtractJSON(raw)
	if got != `{"verdict": "aware"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONArray(t *testing.T) {
	raw := "[{\"a\":1},{\"b\":2}]"
	got := ExtractJSON(raw)
	if got != raw {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONNestedBraces(t *testing.T) {
	raw := `{"outer": {"inner": 1}, "arr": [1,2]}`
	got := ExtractJSON(raw)
	if got != raw {
		t.Errorf("got %q", got)
	}
}
