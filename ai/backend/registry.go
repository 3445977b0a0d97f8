// Package backend maps backend classes to concrete model endpoints.
// The registry is loaded once from YAML at startup and is immutable
// afterwards, so concurrent reads need no synchronization. Adding a
// backend is a data-only change.
package backend

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hrygo/parley/ai/routing"
)

// Duration wraps time.Duration so YAML values like "5m" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Dialect selects which prompt template a backend receives.
type Dialect string

const (
	// DialectTerse is for backends with native tool-use training: a short
	// tool list plus the invocation grammar.
	DialectTerse Dialect = "terse"
	// DialectWorkedExamples is for backends weakly trained for structured
	// output: worked examples per tool category.
	DialectWorkedExamples Dialect = "worked_examples"
)

// Params is the bundle of invocation knobs passed to a backend.
type Params struct {
	Temperature   float32  `yaml:"temperature"`
	MaxTokens     int      `yaml:"max_tokens"`
	ContextWindow int      `yaml:"context_window"`
	Stop          []string `yaml:"stop,omitempty"`
}

// Profile describes one model backend bound to a class.
type Profile struct {
	Class    routing.Class `yaml:"class"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	// APIKey overrides the process-wide key when set.
	APIKey  string  `yaml:"api_key,omitempty"`
	Dialect Dialect `yaml:"dialect"`
	Params  Params  `yaml:"params"`
	// WarmFor is how long the backend should be kept loaded. Zero disables
	// warmup pings for this backend.
	WarmFor Duration `yaml:"warm_for"`
}

// ErrUnknownClass reports a class with no registered profile. Resolving it
// mid-request indicates a configuration invariant violation; Validate
// turns it into a startup failure instead.
type ErrUnknownClass struct {
	Class routing.Class
}

func (e *ErrUnknownClass) Error() string {
	return fmt.Sprintf("no backend profile registered for class %q", e.Class)
}

// Registry is the immutable class -> profile table.
type Registry struct {
	profiles map[routing.Class]*Profile
}

type registryFile struct {
	Backends []*Profile `yaml:"backends"`
}

// Load reads the registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backends file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse backends yaml: %w", err)
	}

	return NewRegistry(file.Backends)
}

// NewRegistry builds a registry from profiles, applying defaults.
func NewRegistry(profiles []*Profile) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no backend profiles configured")
	}

	table := make(map[routing.Class]*Profile, len(profiles))
	for _, p := range profiles {
		if p.Class == "" {
			return nil, fmt.Errorf("backend profile with empty class (model %q)", p.Model)
		}
		if p.Endpoint == "" {
			return nil, fmt.Errorf("backend profile %q has no endpoint", p.Class)
		}
		if p.Model == "" {
			return nil, fmt.Errorf("backend profile %q has no model", p.Class)
		}
		if _, dup := table[p.Class]; dup {
			return nil, fmt.Errorf("duplicate backend profile for class %q", p.Class)
		}

		applyDefaults(p)
		table[p.Class] = p
	}

	return &Registry{profiles: table}, nil
}

func applyDefaults(p *Profile) {
	if p.Dialect == "" {
		p.Dialect = DialectTerse
	}
	if p.Params.MaxTokens <= 0 {
		p.Params.MaxTokens = 2048
	}
	if p.Params.Temperature <= 0 {
		p.Params.Temperature = 0.7
	}
	if p.Params.ContextWindow <= 0 {
		p.Params.ContextWindow = 8192
	}
}

// Resolve returns the profile for a class. Classes come from the
// classifier, which only emits values checked by Validate at boot,
// so a miss here is a programming error.
func (r *Registry) Resolve(class routing.Class) (*Profile, error) {
	p, ok := r.profiles[class]
	if !ok {
		return nil, &ErrUnknownClass{Class: class}
	}
	return p, nil
}

// Validate confirms every class the classifier can emit has a profile.
// Call at startup; a failure here is fatal.
func (r *Registry) Validate(classes []routing.Class) error {
	for _, class := range classes {
		if _, ok := r.profiles[class]; !ok {
			return &ErrUnknownClass{Class: class}
		}
	}
	return nil
}

// Profiles returns all registered profiles in no particular order.
func (r *Registry) Profiles() []*Profile {
	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}
