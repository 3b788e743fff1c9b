package dom

import (
	"strings"

	"github.com/aymerick/douceur/parser"
)

// Declaration is one inline style declaration.
type Declaration struct {
	Property  string
	Value     string
	Important bool
}

// Style is an ordered inline style attribute.
type Style []Declaration

// ParseStyle parses the content of a style attribute the way browsers do:
// a declaration that does not parse is dropped and the others are kept.
// Comments and declarations without a value are skipped.
func ParseStyle(attr string) Style {
	var s Style
	for _, chunk := range splitDeclarations(stripComments(attr)) {
		decls, err := parser.ParseDeclarations(chunk + ";")
		if err != nil || len(decls) != 1 {
			continue
		}
		d := decls[0]
		if d.Property == "" || strings.TrimSpace(d.Value) == "" {
			continue
		}
		s = append(s, Declaration{
			Property:  normalizeProperty(d.Property),
			Value:     d.Value,
			Important: d.Important,
		})
	}
	return s
}

// splitDeclarations cuts attr on the semicolons that are outside quotes and
// parentheses. Blank chunks are left out.
func splitDeclarations(attr string) []string {
	var (
		out   []string
		quote rune
		depth int
		start int
	)
	cut := func(end int) {
		if chunk := strings.TrimSpace(attr[start:end]); chunk != "" {
			out = append(out, chunk)
		}
		start = end + 1
	}
	escaped := false
	for i, r := range attr {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case r == ';' && depth == 0:
			cut(i)
		}
	}
	cut(len(attr))
	return out
}

// stripComments removes /* */ comments outside quoted strings. An
// unterminated comment runs to the end.
func stripComments(attr string) string {
	if !strings.Contains(attr, "/*") {
		return attr
	}
	var b strings.Builder
	var quote byte
	for i := 0; i < len(attr); i++ {
		c := attr[i]
		switch {
		case quote != 0:
			if c == '\\' && i+1 < len(attr) {
				b.WriteByte(c)
				i++
				c = attr[i]
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '/' && i+1 < len(attr) && attr[i+1] == '*':
			end := strings.Index(attr[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Get returns the value of prop, "" when absent.
func (s Style) Get(prop string) string {
	prop = normalizeProperty(prop)
	for _, d := range s {
		if d.Property == prop {
			return d.Value
		}
	}
	return ""
}

// Set replaces the value of prop in place or appends it. Like
// CSSStyleDeclaration.setProperty without a priority, the declaration
// loses any !important flag.
func (s Style) Set(prop, value string) Style {
	prop = normalizeProperty(prop)
	for i := range s {
		if s[i].Property == prop {
			s[i].Value = value
			s[i].Important = false
			return s
		}
	}
	return append(s, Declaration{Property: prop, Value: value})
}

// String serialises the style back to attribute form.
func (s Style) String() string {
	var b strings.Builder
	for i, d := range s {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(d.Property)
		b.WriteString(": ")
		b.WriteString(d.Value)
		if d.Important {
			b.WriteString(" !important")
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Custom properties are case-sensitive, regular ones are not.
func normalizeProperty(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "--") {
		return p
	}
	return strings.ToLower(p)
}
