package render

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TemplateInfo describes one built-in card template.
type TemplateInfo struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	File    string `yaml:"file"`
	Tabbed  bool   `yaml:"tabbed"`
	Default bool   `yaml:"default"`
}

type manifest struct {
	Templates []TemplateInfo `yaml:"templates"`
}

// Builtins lists the built-in templates in manifest order.
func Builtins() []TemplateInfo {
	out := make([]TemplateInfo, len(builtins.Templates))
	copy(out, builtins.Templates)
	return out
}

// lookupBuiltin finds a manifest entry by id.
func lookupBuiltin(id string) (TemplateInfo, bool) {
	for _, t := range builtins.Templates {
		if t.ID == id {
			return t, true
		}
	}
	return TemplateInfo{}, false
}

// defaultBuiltin returns the manifest entry flagged default, falling
// back to the first entry.
func defaultBuiltin() TemplateInfo {
	for _, t := range builtins.Templates {
		if t.Default {
			return t
		}
	}
	return builtins.Templates[0]
}

var builtins = mustManifest()

func mustManifest() manifest {
	data, err := templatesFS.ReadFile("templates/manifest.yaml")
	if err != nil {
		panic(fmt.Sprintf("render: read template manifest: %v", err))
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("render: parse template manifest: %v", err))
	}
	if len(m.Templates) == 0 {
		panic("render: template manifest is empty")
	}
	return m
}
