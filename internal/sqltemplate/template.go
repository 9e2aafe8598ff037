// Package sqltemplate holds named, parameterized statement and location
// templates. Render is the only place run-time values enter statement text.
package sqltemplate

import (
	"regexp"
	"sort"
	"strings"

	"duckflow/internal/ddl"
	"duckflow/internal/domain"
)

// Kind selects how placeholder values are rendered.
type Kind int

const (
	// KindSQL renders {name} as a quoted literal and {name:ident} as a quoted identifier.
	KindSQL Kind = iota
	// KindLocation renders {name} as a validated path segment.
	KindLocation
)

var (
	placeholderRe = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)(:ident)?$`)
	segmentRe     = regexp.MustCompile(`^[A-Za-z0-9._=-]+$`)
)

// Params supplies placeholder values. domain.ExecutionContext implements it.
type Params interface {
	Param(name string) (string, bool)
}

// MapParams adapts a plain map to Params.
type MapParams map[string]string

// Param implements Params.
func (m MapParams) Param(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

type part struct {
	text  string
	param string
	ident bool
}

// Template is a parsed statement or location template. It is immutable and
// safe for concurrent use.
type Template struct {
	Name string
	Kind Kind
	Text string

	parts  []part
	params []string
}

// Parse parses text into a template. Placeholders are {name} or, in SQL
// templates, {name:ident}. A doubled brace {{ emits a literal brace, and any
// other brace sequence is kept verbatim.
func Parse(name string, kind Kind, text string) (*Template, error) {
	if name == "" {
		return nil, domain.ErrValidation("template name is required")
	}
	t := &Template{Name: name, Kind: kind, Text: text}
	seen := map[string]struct{}{}

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{text: lit.String()})
			lit.Reset()
		}
	}

	i := 0
	for i < len(text) {
		if strings.HasPrefix(text[i:], "{{") {
			lit.WriteByte('{')
			i += 2
			continue
		}
		if text[i] == '{' {
			end := strings.IndexByte(text[i+1:], '}')
			if end >= 0 {
				m := placeholderRe.FindStringSubmatch(text[i+1 : i+1+end])
				if m != nil {
					if m[2] != "" && kind == KindLocation {
						return nil, &domain.TemplateResolutionError{Template: name, Param: m[1], Reason: "identifier placeholders are not allowed in locations"}
					}
					flush()
					t.parts = append(t.parts, part{param: m[1], ident: m[2] != ""})
					if _, ok := seen[m[1]]; !ok {
						seen[m[1]] = struct{}{}
						t.params = append(t.params, m[1])
					}
					i += end + 2
					continue
				}
			}
		}
		lit.WriteByte(text[i])
		i++
	}
	flush()
	sort.Strings(t.params)
	return t, nil
}

// MustParse is like Parse but panics on error. Intended for built-in catalogs.
func MustParse(name string, kind Kind, text string) *Template {
	t, err := Parse(name, kind, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Params returns the sorted names of the placeholders in the template.
func (t *Template) Params() []string {
	return append([]string(nil), t.params...)
}

// Render substitutes every placeholder. A missing parameter or a value that
// fails validation yields a TemplateResolutionError.
func (t *Template) Render(p Params) (string, error) {
	var b strings.Builder
	for _, pt := range t.parts {
		if pt.param == "" {
			b.WriteString(pt.text)
			continue
		}
		v, ok := p.Param(pt.param)
		if !ok {
			return "", &domain.TemplateResolutionError{Template: t.Name, Param: pt.param, Reason: "missing parameter"}
		}
		rendered, err := t.renderValue(pt, v)
		if err != nil {
			return "", err
		}
		b.WriteString(rendered)
	}
	return b.String(), nil
}

func (t *Template) renderValue(pt part, v string) (string, error) {
	switch {
	case t.Kind == KindLocation:
		if !segmentRe.MatchString(v) || strings.Contains(v, "..") {
			return "", &domain.TemplateResolutionError{Template: t.Name, Param: pt.param, Reason: "value is not a valid path segment: " + v}
		}
		return v, nil
	case pt.ident:
		q, err := ddl.QualifiedName(v)
		if err != nil {
			return "", &domain.TemplateResolutionError{Template: t.Name, Param: pt.param, Reason: err.Error()}
		}
		return q, nil
	default:
		return ddl.QuoteLiteral(v), nil
	}
}
