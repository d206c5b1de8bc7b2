package tabular

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FieldMap renames source-specific header names to the canonical
// column set, so exports labeled "Business Name" or "Street Address"
// feed the same pipeline.
type FieldMap struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadFieldMap reads a field map from a YAML file of the form:
//
//	aliases:
//	  "Business Name": NAME
//	  "Street Address": STADDR
func LoadFieldMap(path string) (*FieldMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read field map %s", path)
	}

	var fm FieldMap
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return nil, eris.Wrap(err, "tabular: parse field map")
	}

	// Normalize alias keys the same way headers are normalized.
	aliases := make(map[string]string, len(fm.Aliases))
	for from, to := range fm.Aliases {
		aliases[strings.TrimSpace(from)] = strings.TrimSpace(to)
	}
	fm.Aliases = aliases

	return &fm, nil
}

// Apply returns the canonical name for a source header. A nil map
// passes headers through unchanged.
func (m *FieldMap) Apply(header string) string {
	if m == nil {
		return header
	}
	if canon, ok := m.Aliases[header]; ok {
		return canon
	}
	return header
}
