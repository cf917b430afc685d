// Package modes loads documentation mode definitions (prompt configuration
// per output style) and suggests a mode from meeting keywords.
package modes

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"devlens/internal/services"
)

// Mode identifiers shipped in the built-in catalog.
const (
	BugReport      = "bug_report"
	FeatureKickoff = "feature_kickoff"
	GeneralDoc     = "general_doc"
)

//go:embed modes.yaml
var builtinCatalog []byte

// ErrUnknownMode is returned when a mode key is not in the catalog.
var ErrUnknownMode = fmt.Errorf("%w: unknown documentation mode", services.ErrNotFound)

// Config is the prompt configuration for one mode.
type Config struct {
	Name              string   `yaml:"name" json:"name"`
	Description       string   `yaml:"description" json:"description"`
	SystemInstruction string   `yaml:"system_instruction" json:"system_instruction"`
	OutputFormat      string   `yaml:"output_format" json:"output_format"`
	Guidelines        []string `yaml:"guidelines" json:"guidelines"`
}

// Info is the listing entry for a mode.
type Info struct {
	Mode        string `json:"mode"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog is an immutable set of modes.
type Catalog struct {
	modes map[string]Config
	title cases.Caser
}

// Builtin returns the embedded catalog.
func Builtin() (*Catalog, error) {
	return Parse(builtinCatalog)
}

// Load reads a catalog from path, or the embedded catalog when path is empty.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "modes", "load catalog", path, err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]Config
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "modes", "parse catalog", "invalid yaml", err)
	}
	if len(raw) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "modes", "parse catalog", "no modes defined", nil)
	}
	modes := make(map[string]Config, len(raw))
	for key, cfg := range raw {
		key = strings.TrimSpace(key)
		if strings.TrimSpace(cfg.SystemInstruction) == "" {
			return nil, services.Wrap(services.ErrConfiguration, "modes", "parse catalog",
				fmt.Sprintf("mode %q has no system_instruction", key), nil)
		}
		if cfg.OutputFormat == "" {
			cfg.OutputFormat = "markdown"
		}
		if cfg.Guidelines == nil {
			cfg.Guidelines = []string{}
		}
		modes[key] = cfg
	}
	return &Catalog{modes: modes, title: cases.Title(language.English)}, nil
}

// Get returns the raw configuration for mode.
func (c *Catalog) Get(mode string) (Config, error) {
	cfg, ok := c.modes[strings.TrimSpace(mode)]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return cfg, nil
}

// Has reports whether mode exists.
func (c *Catalog) Has(mode string) bool {
	_, ok := c.modes[strings.TrimSpace(mode)]
	return ok
}

// Render returns the configuration for mode with {placeholders} in the system
// instruction replaced from vars. Unknown placeholders are left as written.
func (c *Catalog) Render(mode string, vars map[string]string) (Config, error) {
	cfg, err := c.Get(mode)
	if err != nil {
		return Config{}, err
	}
	if len(vars) == 0 {
		return cfg, nil
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	cfg.SystemInstruction = strings.NewReplacer(pairs...).Replace(cfg.SystemInstruction)
	cfg.Guidelines = append([]string(nil), cfg.Guidelines...)
	return cfg, nil
}

// List returns mode metadata sorted by key.
func (c *Catalog) List() []Info {
	keys := make([]string, 0, len(c.modes))
	for key := range c.modes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Info, 0, len(keys))
	for _, key := range keys {
		cfg := c.modes[key]
		out = append(out, Info{Mode: key, Name: c.DisplayName(key), Description: cfg.Description})
	}
	return out
}

// DisplayName returns the human-readable name for mode. Modes missing from
// the catalog are title-cased from their key.
func (c *Catalog) DisplayName(mode string) string {
	mode = strings.TrimSpace(mode)
	if cfg, ok := c.modes[mode]; ok && strings.TrimSpace(cfg.Name) != "" {
		return cfg.Name
	}
	if mode == "" {
		return ""
	}
	return c.title.String(strings.ReplaceAll(mode, "_", " "))
}

var suggestionRules = []struct {
	mode     string
	keywords []string
}{
	{mode: BugReport, keywords: []string{"bug", "error", "fix", "crash"}},
	{mode: FeatureKickoff, keywords: []string{"feature", "design", "prd", "kickoff"}},
}

// Suggest picks a mode from free-form keywords (meeting title words, tags).
// Bug vocabulary wins over feature vocabulary; anything else is general_doc.
func Suggest(keywords ...string) string {
	text := strings.ToLower(strings.Join(keywords, " "))
	for _, rule := range suggestionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.mode
			}
		}
	}
	return GeneralDoc
}

// IsUnknownMode reports whether err came from a missing catalog entry.
func IsUnknownMode(err error) bool {
	return errors.Is(err, ErrUnknownMode)
}
