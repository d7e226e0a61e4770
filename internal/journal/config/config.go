// Package config loads the daemon's optional YAML override file, named by
// BEAKERLIB_JOURNALD_CONFIG, validating it against an embedded JSON Schema
// before applying any values.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// Config holds every value the override file can set. Zero values mean
// "use the package default" — callers apply defaults themselves so a
// partially-specified file only overrides what it mentions.
type Config struct {
	Colours             map[string]string `yaml:"colours,omitempty"`
	PurposeWrapWidth    int               `yaml:"purpose_wrap_width,omitempty"`
	PluginGlob          string            `yaml:"plugin_glob,omitempty"`
	PackageCacheEnabled *bool             `yaml:"package_cache_enabled,omitempty"`
}

const (
	DefaultPurposeWrapWidth = 80
	DefaultPluginGlob       = "*.sh"
)

// Load reads and validates the file at path. A missing path (the common
// case: BEAKERLIB_JOURNALD_CONFIG unset) is not an error; Load returns a
// zero Config so callers can apply defaults uniformly.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("config: %s failed schema validation: %w", path, err)
	}
	return &cfg, nil
}

func validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	// jsonschema validates against JSON-shaped data; round-trip through
	// encoding/json so YAML's decoded values (ints, for instance) take the
	// types encoding/json produces.
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonBytes, &jsonDoc); err != nil {
		return err
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}
	return schema.Validate(jsonDoc)
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config-schema.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
		return nil, err
	}
	return c.Compile("config-schema.json")
}

// ResolvePurposeWrapWidth returns c's override or the package default.
func (c *Config) ResolvePurposeWrapWidth() int {
	if c == nil || c.PurposeWrapWidth == 0 {
		return DefaultPurposeWrapWidth
	}
	return c.PurposeWrapWidth
}

// ResolvePluginGlob returns c's override or the package default.
func (c *Config) ResolvePluginGlob() string {
	if c == nil || c.PluginGlob == "" {
		return DefaultPluginGlob
	}
	return c.PluginGlob
}

// ResolvePackageCacheEnabled returns c's override, defaulting to true
// (caching on) when unset.
func (c *Config) ResolvePackageCacheEnabled() bool {
	if c == nil || c.PackageCacheEnabled == nil {
		return true
	}
	return *c.PackageCacheEnabled
}

// ResolveColour returns c's override colour code for sev, or ok=false when
// sev has no override.
func (c *Config) ResolveColour(sev string) (string, bool) {
	if c == nil || c.Colours == nil {
		return "", false
	}
	code, ok := c.Colours[sev]
	return code, ok
}
