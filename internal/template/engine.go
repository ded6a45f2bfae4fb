package template

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders Go templates with the sprig function map. Parsed templates
// are cached, so rendering the same case command for many jobs parses once.
type Engine struct {
	funcs template.FuncMap
	cache sync.Map // text -> *template.Template
}

// New creates a new template engine
func New() *Engine {
	return &Engine{funcs: sprig.TxtFuncMap()}
}

func (e *Engine) parse(text string) (*template.Template, error) {
	if t, ok := e.cache.Load(text); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("value").
		Funcs(e.funcs).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, err
	}
	actual, _ := e.cache.LoadOrStore(text, t)
	return actual.(*template.Template), nil
}

// Validate reports a template that does not parse.
func (e *Engine) Validate(text string) error {
	if !strings.Contains(text, "{{") {
		return nil
	}
	_, err := e.parse(text)
	return err
}

// Render executes text against data. Strings without actions are returned
// unchanged. Referencing a key missing from data is an error.
func (e *Engine) Render(text string, data map[string]interface{}) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	t, err := e.parse(text)
	if err != nil {
		return "", fmt.Errorf("invalid template %q: %w", text, err)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %q: %w", text, err)
	}
	return b.String(), nil
}

// RenderAll renders every element of values.
func (e *Engine) RenderAll(values []string, data map[string]interface{}) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		r, err := e.Render(v, data)
		if err != nil {
			return nil, fmt.Errorf("error at index %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// RenderEnv renders the values of vars and returns sorted KEY=VALUE pairs.
func (e *Engine) RenderEnv(vars map[string]string, data map[string]interface{}) ([]string, error) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := e.Render(vars[k], data)
		if err != nil {
			return nil, fmt.Errorf("error in key '%s': %w", k, err)
		}
		out = append(out, k+"="+v)
	}
	return out, nil
}
