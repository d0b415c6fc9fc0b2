// Package roster loads staff lists from YAML files.
package roster

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/activity-cli/internal/model"
)

type file struct {
	Staff []model.Staff `yaml:"staff"`
}

// LoadFile reads a roster of the form:
//
//	staff:
//	  - code: Staff-01
//	    name: Jane Doe
//	    aliases: ["Jane D", "+44 7700 900123"]
//	    email: jane@example.com
func LoadFile(path string) ([]model.Staff, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roster: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML roster. Codes must be present and unique.
func Parse(data []byte) ([]model.Staff, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "roster: decode yaml")
	}

	seen := make(map[string]bool, len(f.Staff))
	for i := range f.Staff {
		s := &f.Staff[i]
		s.Code = strings.TrimSpace(s.Code)
		s.Name = strings.TrimSpace(s.Name)
		if s.Code == "" {
			return nil, eris.Errorf("roster: entry %d has no code", i+1)
		}
		if seen[s.Code] {
			return nil, eris.Errorf("roster: duplicate code %q", s.Code)
		}
		seen[s.Code] = true
		if s.Name == "" {
			s.Name = s.Code
		}
		for _, a := range s.Aliases {
			if strings.Contains(a, ",") {
				return nil, eris.Errorf("roster: alias %q of %s contains a comma", a, s.Code)
			}
		}
		s.Active = true
	}
	return f.Staff, nil
}
