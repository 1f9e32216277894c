package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides maps tracker kinds to extra label -> attribute entries.
type Overrides map[Kind]map[string]string

// LoadOverrides reads a YAML document of the form
//
//	bugzilla:
//	  "Blocks": keywords
//	jira:
//	  "Affects Version/s": version
func LoadOverrides(path string) (Overrides, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	raw := map[string]map[string]string{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parse mapping file: %w", err)
	}
	out := make(Overrides, len(raw))
	for name, labels := range raw {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		out[kind] = labels
	}
	return out, nil
}

type overlay struct {
	Adapter
	extra map[string]Attribute
}

// WithOverrides adds label mappings to an adapter. Every target must be a declared attribute.
func WithOverrides(a Adapter, labels map[string]string) (Adapter, error) {
	if len(labels) == 0 {
		return a, nil
	}
	extra := make(map[string]Attribute, len(labels))
	for label, name := range labels {
		attr, ok := a.Attribute(name)
		if !ok {
			return nil, fmt.Errorf("mapping %q -> %q: %s has no such attribute", label, name, a.Kind())
		}
		extra[label] = attr
	}
	return &overlay{Adapter: a, extra: extra}, nil
}

func (o *overlay) Lookup(label string) (Attribute, bool) {
	if attr, ok := o.extra[label]; ok {
		return attr, true
	}
	return o.Adapter.Lookup(label)
}
