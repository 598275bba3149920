// Package config provides per-site configuration for the normalization
// and synchronization engine. Site quirks are expressed as data consumed
// by one generic normalizer, never as per-site code.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingName        = errors.New("name is required")
	ErrMissingSiteOrigin  = errors.New("site_origin is required")
	ErrInvalidSiteOrigin  = errors.New("site_origin must be an absolute http(s) URL")
	ErrInvalidBaseURL     = errors.New("base_url_override must be an absolute http(s) URL")
	ErrMissingPrimaryURL  = errors.New("mapping.primary_url is required")
	ErrInvalidNumberFmt   = errors.New("numeric field format must be one of: brazilian_currency, integer, float")
	ErrMissingNumericName = errors.New("numeric field name is required")
	ErrMissingComputedSum = errors.New("computed field requires a name and at least two sum terms")
	ErrImagesMainField    = errors.New("mapping.images.main_field is required when mapping.images.field is set")
	ErrInvalidWorkers     = errors.New("sync.workers must be non-negative")
	ErrNoSites            = errors.New("no site configurations found")
)

// Numeric field formats.
const (
	FormatBrazilianCurrency = "brazilian_currency"
	FormatInteger           = "integer"
	FormatFloat             = "float"
)

// SiteConfig is the complete static configuration for one listing site.
type SiteConfig struct {
	Name            string       `yaml:"name"`
	Enabled         bool         `yaml:"enabled"`
	SiteOrigin      string       `yaml:"site_origin"`
	BaseURLOverride string       `yaml:"base_url_override"`
	Mapping         FieldMapping `yaml:"mapping"`
	Sync            SyncConfig   `yaml:"sync"`

	// Frozen at validation time: the base all relative URLs resolve
	// against (base_url_override when present, else site_origin).
	base *url.URL
}

// FieldMapping declares which raw fields carry URLs, numbers and derived
// values. Recognized options are enumerated here explicitly instead of
// inferred from the data.
type FieldMapping struct {
	PrimaryURL string          `yaml:"primary_url"`
	URLFields  []string        `yaml:"url_fields"`
	Images     ImageMapping    `yaml:"images"`
	Numeric    []NumericField  `yaml:"numeric_fields"`
	Computed   []ComputedField `yaml:"computed_fields"`
	Required   []string        `yaml:"required_fields"`
}

// ImageMapping selects a list-valued image field and the field name that
// receives the first canonical image.
type ImageMapping struct {
	Field     string `yaml:"field"`
	MainField string `yaml:"main_field"`
}

// NumericField declares a raw field to be parsed into a number.
type NumericField struct {
	Name   string `yaml:"name"`
	Format string `yaml:"format"`
}

// ComputedField declares a derived numeric field summed from other
// fields. The field is absent when the first term is absent.
type ComputedField struct {
	Name string   `yaml:"name"`
	Sum  []string `yaml:"sum"`
}

// SyncConfig holds synchronization tuning for the site.
type SyncConfig struct {
	Workers int `yaml:"workers"`
}

// LoadSite loads and validates one site configuration from a YAML file.
func LoadSite(path string) (*SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site config: %w", err)
	}

	cfg := &SiteConfig{Enabled: true}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Name == "" {
		cfg.Name = stem(path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("site %q: %w", cfg.Name, err)
	}

	return cfg, nil
}

// LoadSites loads every *.yaml/*.yml file in dir, sorted by file name.
// Any invalid file fails the whole load: a bad configuration must fail
// fast before any crawl work is wasted.
func LoadSites(dir string) ([]*SiteConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites directory: %w", err)
	}

	var paths []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(paths)

	var sites []*SiteConfig

	for _, path := range paths {
		site, err := LoadSite(path)
		if err != nil {
			return nil, err
		}

		sites = append(sites, site)
	}

	if len(sites) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSites, dir)
	}

	return sites, nil
}

// Validate checks the configuration eagerly and freezes the resolution
// base. Configuration problems surface here, never at per-record time.
func (c *SiteConfig) Validate() error {
	if c.Name == "" {
		return ErrMissingName
	}

	if c.SiteOrigin == "" {
		return ErrMissingSiteOrigin
	}

	origin, err := parseAbsolute(c.SiteOrigin)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSiteOrigin, c.SiteOrigin)
	}

	base := origin

	if c.BaseURLOverride != "" {
		base, err = parseAbsolute(c.BaseURLOverride)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURLOverride)
		}
	}

	if c.Mapping.PrimaryURL == "" {
		return ErrMissingPrimaryURL
	}

	for i, nf := range c.Mapping.Numeric {
		if nf.Name == "" {
			return fmt.Errorf("%w: numeric_fields[%d]", ErrMissingNumericName, i)
		}

		switch nf.Format {
		case FormatBrazilianCurrency, FormatInteger, FormatFloat:
		default:
			return fmt.Errorf("%w: numeric_fields[%d] has %q", ErrInvalidNumberFmt, i, nf.Format)
		}
	}

	for i, cf := range c.Mapping.Computed {
		if cf.Name == "" || len(cf.Sum) < 2 {
			return fmt.Errorf("%w: computed_fields[%d]", ErrMissingComputedSum, i)
		}
	}

	if c.Mapping.Images.Field != "" && c.Mapping.Images.MainField == "" {
		return ErrImagesMainField
	}

	if c.Sync.Workers < 0 {
		return ErrInvalidWorkers
	}

	c.base = base

	return nil
}

// Base returns the frozen resolution base for relative URLs. Validate
// must have succeeded first.
func (c *SiteConfig) Base() *url.URL {
	return c.base
}

// String returns a short description of the site configuration.
func (c *SiteConfig) String() string {
	return fmt.Sprintf("SiteConfig{Name: %s, Origin: %s, URLFields: %d}",
		c.Name, c.SiteOrigin, len(c.Mapping.URLFields)+1)
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("not an absolute http(s) URL: %q", raw)
	}

	return u, nil
}

func stem(path string) string {
	name := filepath.Base(path)

	return name[:len(name)-len(filepath.Ext(name))]
}
