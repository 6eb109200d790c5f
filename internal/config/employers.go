package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"

	"jobvyne-crawler/internal/adapter"
)

type EmployersFile struct {
	Employers []adapter.Spec `yaml:"employers"`
}

// LoadEmployers reads the employer registry file. A missing file yields no
// employers so a fresh install still starts.
func LoadEmployers(path string) ([]adapter.Spec, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ef EmployersFile
	if err := yaml.Unmarshal(b, &ef); err != nil {
		return nil, err
	}
	return ef.Employers, nil
}
