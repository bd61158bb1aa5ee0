package dashboard

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
)

// htmlEscaper covers the five characters that can break out of an
// attribute or element context.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&#39;",
)

// EscapeHTML entity-escapes user-derived text for element content.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// scriptEscaper protects the surrounding script-tag context: a literal
// </ would terminate the script block, backticks or ${ would escape a
// template-literal context on the client side, and the JS line
// separators are invalid in an inline script. All targets can only
// occur inside JSON strings, where these escapes are valid.
var scriptEscaper = strings.NewReplacer(
	"</", "<\\/",
	"`", "\\u0060",
	"${", "\\u0024{",
	" ", "\\u2028",
	" ", "\\u2029",
)

// ScriptJSON serializes v for inline embedding inside a <script>
// block. The result is marked template.JS so html/template leaves it
// alone; safety comes from the replacements here plus encoding/json's
// default escaping of angle brackets.
func ScriptJSON(v any) (template.JS, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal dashboard state: %w", err)
	}
	return template.JS(scriptEscaper.Replace(string(data))), nil
}
