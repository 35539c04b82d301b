package listing

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/philgeps-cli/internal/model"
)

//go:embed mappings.yaml
var defaultMappings []byte

// TitleField is the field name whose value becomes RecordSummary.Title.
const TitleField = "title"

// Layout is one known shape of a listing row.
type Layout struct {
	Name   string            `yaml:"name"`
	When   string            `yaml:"when"`
	Key    string            `yaml:"key"`
	Fields map[string]string `yaml:"fields"`
}

// Mapping describes how to read one record kind's listing table.
type Mapping struct {
	Kind        model.RecordKind `yaml:"-"`
	FallbackURL string           `yaml:"fallback_url"`
	Layouts     []Layout         `yaml:"layouts"`
}

// DetailURLFor builds the fallback detail URL for a key.
func (m Mapping) DetailURLFor(key string) string {
	return strings.ReplaceAll(m.FallbackURL, "{key}", key)
}

// ParseMappings decodes a mappings document keyed by record kind.
func ParseMappings(data []byte) (map[model.RecordKind]Mapping, error) {
	var raw map[string]Mapping
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "listing: parse mappings")
	}

	out := make(map[model.RecordKind]Mapping, len(raw))
	for name, m := range raw {
		kind, ok := model.ParseKind(name)
		if !ok {
			return nil, eris.Errorf("listing: unknown record kind %q in mappings", name)
		}
		if len(m.Layouts) == 0 {
			return nil, eris.Errorf("listing: %s mapping has no layouts", name)
		}
		for i, l := range m.Layouts {
			if l.Key == "" {
				return nil, eris.Errorf("listing: %s layout %d has no key selector", name, i)
			}
		}
		m.Kind = kind
		out[kind] = m
	}
	return out, nil
}

// MappingFor returns the embedded mapping for kind.
func MappingFor(kind model.RecordKind) (Mapping, error) {
	all, err := ParseMappings(defaultMappings)
	if err != nil {
		return Mapping{}, err
	}
	m, ok := all[kind]
	if !ok {
		return Mapping{}, eris.Errorf("listing: no mapping for %s", kind)
	}
	return m, nil
}
