package notifications

import (
	"strings"
)

// Renderer turns a template body and variables into the final text.
type Renderer interface {
	Render(body string, vars map[string]string) (string, error)
}

type RendererFunc func(body string, vars map[string]string) (string, error)

func (f RendererFunc) Render(body string, vars map[string]string) (string, error) {
	return f(body, vars)
}

// DefaultRenderer substitutes {{name}} placeholders.
var DefaultRenderer Renderer = RendererFunc(Render)

// Render replaces every {{name}} placeholder with vars[name]. Whitespace
// inside the braces is ignored and names the caller did not supply render
// as the empty string. A "}}" outside a placeholder is literal text.
// Unterminated placeholders and invalid names are reported as *RenderError.
func Render(body string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(body))

	i := 0
	for i < len(body) {
		open := indexFrom(body, "{{", i)
		if open < 0 {
			b.WriteString(body[i:])
			break
		}

		b.WriteString(body[i:open])
		end := indexFrom(body, "}}", open+2)
		if end < 0 {
			return "", &RenderError{Offset: open, Reason: "unterminated placeholder"}
		}
		name := strings.TrimSpace(body[open+2 : end])
		if !validVarName(name) {
			return "", &RenderError{Offset: open, Reason: "invalid placeholder name " + quote(name)}
		}
		b.WriteString(vars[name])
		i = end + 2
	}
	return b.String(), nil
}

func indexFrom(s, sub string, from int) int {
	idx := strings.Index(s[from:], sub)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// validVarName accepts letters, digits, '_', '.' and '-', starting with a
// letter or '_'.
func validVarName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '.' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func quote(s string) string {
	return "\"" + s + "\""
}
