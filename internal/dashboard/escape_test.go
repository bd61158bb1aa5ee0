package dashboard

import (
	"strings"
	"testing"
)

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`<script>alert("x")</script>`, "&lt;script&gt;alert(&quot;x&quot;)&lt;/script&gt;"},
		{"a & b", "a &amp; b"},
		{"O'Brien", "O&#39;Brien"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := EscapeHTML(tt.in); got != tt.want {
			t.Errorf("EscapeHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Student-authored text is embedded into an inline script block; no
// value may ever be able to terminate that block or escape a client
// template literal.
func TestScriptJSONNeverBreaksScriptContext(t *testing.T) {
	hostile := map[string]string{
		"a": "</script><script>alert(1)</script>",
		"b": "backtick ` and ${injection}",
		"c": "line and separators",
	}

	out, err := ScriptJSON(hostile)
	if err != nil {
		t.Fatalf("ScriptJSON: %v", err)
	}
	s := string(out)

	if strings.Contains(s, "</script") {
		t.Fatalf("closing script tag survived: %s", s)
	}
	if strings.Contains(s, "</") {
		t.Fatalf("unescaped </ survived: %s", s)
	}
	if strings.Contains(s, "`") {
		t.Fatalf("backtick survived: %s", s)
	}
	if strings.Contains(s, "${") {
		t.Fatalf("template interpolation survived: %s", s)
	}
	if strings.ContainsRune(s, ' ') || strings.ContainsRune(s, ' ') {
		t.Fatalf("JS line separators survived: %s", s)
	}
}

func TestScriptJSONRoundTrips(t *testing.T) {
	out, err := ScriptJSON(map[string]any{"name": "Chen, Dora", "score": 4})
	if err != nil {
		t.Fatalf("ScriptJSON: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, `"Chen, Dora"`) || !strings.Contains(s, `"score":4`) {
		t.Fatalf("plain values mangled: %s", s)
	}
}
