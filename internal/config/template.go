package config

import (
	"fmt"
	"maps"
	"strings"
	"text/template"
)

// TemplateInput is what a prompt template can refer to, next to its default
// vars and the vars given on the command line.
type TemplateInput struct {
	Prompt   string
	System   string
	Stdin    string
	Suffix   string
	Language string
}

// Render executes the template and its optional system template. Templates
// see prompt, system, stdin, suffix and language, merged with DefaultVars and
// then vars. A nil value in vars removes the key.
func (t Template) Render(in TemplateInput, vars map[string]any) (prompt, system string, err error) {
	data := map[string]any{
		"prompt":   in.Prompt,
		"system":   in.System,
		"stdin":    in.Stdin,
		"suffix":   in.Suffix,
		"language": in.Language,
	}
	defaults := maps.Clone(t.DefaultVars)
	if defaults == nil {
		defaults = map[string]any{}
	}
	MergeVars(defaults, vars)
	MergeVars(data, defaults)

	if t.System != "" {
		if system, err = execute(t.Name+".system", t.System, data); err != nil {
			return "", "", err
		}
	}
	if prompt, err = execute(t.Name, t.Template, data); err != nil {
		return "", "", err
	}
	return prompt, system, nil
}

func execute(name, text string, data map[string]any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var builder strings.Builder
	if err := tmpl.Execute(&builder, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return builder.String(), nil
}

// MergeVars merges src into dst recursively. Nested maps are merged, nil
// values delete the key and anything else replaces it.
func MergeVars(dst, src map[string]any) {
	for key, value := range src {
		if value == nil {
			delete(dst, key)
			continue
		}
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			MergeVars(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
}
