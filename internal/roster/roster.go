// Package roster loads the school's student roster from a YAML file. Each
// student's id doubles as the parent subject id on the issued QR card, and
// the folder name locates the student's artwork in shared storage.
package roster

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Student is one roster entry.
type Student struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	FolderName string `yaml:"folder_name"`
}

// Roster is the full student list.
type Roster struct {
	Students []Student `yaml:"students"`
}

// Load reads and validates a roster file.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse roster file: %w", err)
	}

	if len(r.Students) == 0 {
		return nil, fmt.Errorf("roster has no students")
	}

	seen := make(map[string]bool, len(r.Students))
	for i, s := range r.Students {
		if s.ID == "" {
			return nil, fmt.Errorf("student %d: id is required", i)
		}
		if strings.Contains(s.ID, ":") {
			// The QR payload separator is not escapable.
			return nil, fmt.Errorf("student %q: id must not contain ':'", s.ID)
		}
		if s.Name == "" {
			return nil, fmt.Errorf("student %q: name is required", s.ID)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate student id %q", s.ID)
		}
		seen[s.ID] = true
	}

	return &r, nil
}
