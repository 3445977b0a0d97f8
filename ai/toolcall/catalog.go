// Package toolcall implements the tool-call pipeline: the capability
// catalog, the invocation-token extractor, the deterministic injector,
// and the executor that performs the capability RPC.
package toolcall

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParamSpec describes one argument of a tool.
type ParamSpec struct {
	// Type is one of "string", "number", "boolean", "object", "array".
	Type        string `yaml:"type" json:"type"`
	Required    bool   `yaml:"required" json:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Definition is one callable capability: name, schema, endpoint.
// Immutable at runtime; the catalog is the single source of truth for
// what the extractor, injector and executor may reference.
type Definition struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Params      map[string]ParamSpec `yaml:"params"`
	Endpoint    string               `yaml:"endpoint"`
	// Category groups tools for prompt example selection (e.g. "list",
	// "calendar", "memory", "people").
	Category string `yaml:"category,omitempty"`
}

// Catalog is the static, versioned registry of callable capabilities.
// Loaded once at startup, safe for unsynchronized concurrent reads.
type Catalog struct {
	byName  map[string]*Definition
	ordered []*Definition
	version string
}

type catalogFile struct {
	Version string        `yaml:"version"`
	Tools   []*Definition `yaml:"tools"`
}

var validParamTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"object":  true,
	"array":   true,
}

// LoadCatalog reads the tool catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}

	c, err := NewCatalog(file.Tools)
	if err != nil {
		return nil, err
	}
	c.version = file.Version
	return c, nil
}

// NewCatalog builds a catalog from definitions, validating each one.
func NewCatalog(defs []*Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("no tools configured")
	}

	c := &Catalog{
		byName:  make(map[string]*Definition, len(defs)),
		ordered: make([]*Definition, 0, len(defs)),
	}

	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if def.Endpoint == "" {
			return nil, fmt.Errorf("tool %q has no endpoint", def.Name)
		}
		if _, dup := c.byName[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", def.Name)
		}
		for param, spec := range def.Params {
			if !validParamTypes[spec.Type] {
				return nil, fmt.Errorf("tool %q param %q has invalid type %q", def.Name, param, spec.Type)
			}
		}

		c.byName[def.Name] = def
		c.ordered = append(c.ordered, def)
	}

	return c, nil
}

// Lookup returns the definition for a tool name.
func (c *Catalog) Lookup(name string) (*Definition, bool) {
	def, ok := c.byName[name]
	return def, ok
}

// Definitions returns all tools in declaration order. The order is
// stable so composed prompts are reproducible.
func (c *Catalog) Definitions() []*Definition {
	return c.ordered
}

// Version returns the catalog version string from the config file.
func (c *Catalog) Version() string {
	return c.version
}
