package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// Entry is one discovered capability.
type Entry struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Metadata    map[string]any `json:"metadata" yaml:"metadata"`
	Context     map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
}

// Catalog is an ordered list of capabilities.
type Catalog struct {
	Source       string  `json:"-" yaml:"-"`
	Capabilities []Entry `json:"capabilities" yaml:"capabilities"`
}

// Names returns the capability names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Capabilities))
	for i, e := range c.Capabilities {
		names[i] = e.Name
	}
	return names
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %q: %w", path, err)
	}
	return LoadBytes(data, path)
}

// LoadBytes decodes a YAML or JSON catalog.
func LoadBytes(data []byte, source string) (*Catalog, error) {
	errs := card.NewErrorList(source)

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		errs.AddErrorWithSuggestion(card.ErrorTypeSyntax, "",
			fmt.Sprintf("catalog could not be decoded: %v", err),
			"check indentation, colons and quotes")
		return nil, errs
	}
	if len(root.Content) == 0 {
		return &Catalog{Source: source, Capabilities: []Entry{}}, nil
	}

	node := root.Content[0]
	var entries []Entry
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&entries); err != nil {
			errs.AddError(card.ErrorTypeStructural, "", fmt.Sprintf("invalid capability list: %v", err))
			return nil, errs
		}
	case yaml.MappingNode:
		var wrapped struct {
			Capabilities []Entry `yaml:"capabilities"`
		}
		if err := node.Decode(&wrapped); err != nil {
			errs.AddError(card.ErrorTypeStructural, "capabilities", fmt.Sprintf("invalid capability list: %v", err))
			return nil, errs
		}
		entries = wrapped.Capabilities
	default:
		errs.AddError(card.ErrorTypeStructural, "", "catalog must be a list or a mapping with a capabilities key")
		return nil, errs
	}

	seen := make(map[string]int, len(entries))
	for i := range entries {
		e := &entries[i]
		path := fmt.Sprintf("capabilities[%d]", i)
		if e.Name == "" {
			errs.AddErrorWithSuggestion(card.ErrorTypeStructural, path+".name",
				"capability name is required", "name: search")
		} else if first, dup := seen[e.Name]; dup {
			errs.AddError(card.ErrorTypeStructural, path+".name",
				fmt.Sprintf("duplicate capability %q (first at capabilities[%d])", e.Name, first))
		} else {
			seen[e.Name] = i
		}

		e.Metadata = normalizeMap(e.Metadata)
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		e.Context = normalizeMap(e.Context)
	}

	if errs.HasErrors() {
		return nil, errs
	}
	if entries == nil {
		entries = []Entry{}
	}
	return &Catalog{Source: source, Capabilities: entries}, nil
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := card.Normalize(m).(map[string]any)
	return out
}
