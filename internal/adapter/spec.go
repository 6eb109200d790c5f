package adapter

import (
	"jobvyne-crawler/internal/adapter/static"
	"jobvyne-crawler/internal/paginate"
)

// Spec is one employer entry of the registry file. Only the fields of the
// chosen family are read.
type Spec struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Family      string `yaml:"family"`
	Active      *bool  `yaml:"active,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`

	// static, spa
	URL        string           `yaml:"url,omitempty"`
	Preset     string           `yaml:"preset,omitempty"`
	Links      string           `yaml:"links,omitempty"`
	Group      string           `yaml:"group,omitempty"`
	Header     string           `yaml:"header,omitempty"`
	KeyPattern string           `yaml:"key_pattern,omitempty"`
	Detail     static.Selectors `yaml:"detail,omitempty"`
	Rendered   bool             `yaml:"rendered,omitempty"`
	Ready      string           `yaml:"ready,omitempty"`

	// api
	Dialect  string `yaml:"dialect,omitempty"`
	Board    string `yaml:"board,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	PageSize int    `yaml:"page_size,omitempty"`
	// TokenKey names the keyring entry holding an API token.
	TokenKey string `yaml:"token_key,omitempty"`

	// feed
	KeySource       string `yaml:"key_source,omitempty"`
	LocationField   string `yaml:"location_field,omitempty"`
	DepartmentField string `yaml:"department_field,omitempty"`

	// spa
	Paginator paginate.Selectors `yaml:"paginator,omitempty"`
}

func (s Spec) IsActive() bool { return s.Active == nil || *s.Active }
