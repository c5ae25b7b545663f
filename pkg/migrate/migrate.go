package migrate

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/netops-tools/sastre/pkg/types"
)

//go:embed recipes/201.yaml
var defaultRecipe []byte

// Rule matches template bodies and edits them. Match entries are regexes
// over string fields; a rule with no match entries applies to every body.
type Rule struct {
	Match  map[string]string `yaml:"match,omitempty"`
	Set    map[string]any    `yaml:"set,omitempty"`
	Remove []string          `yaml:"remove,omitempty"`

	matchers map[string]*regexp.Regexp
}

// Recipe describes one source-to-target migration.
type Recipe struct {
	FromVersions []string `yaml:"from_versions"`
	ToVersion    string   `yaml:"to_version"`
	// NameTemplate renames migrated items, default "migrated_{name}".
	NameTemplate     string `yaml:"name_template"`
	FeatureTemplates []Rule `yaml:"feature_templates"`
	DeviceTemplates  []Rule `yaml:"device_templates"`
}

// Default returns the embedded 20.1 migration recipe.
func Default() (*Recipe, error) {
	return parse(defaultRecipe)
}

// Load reads a migration recipe from a file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe %s: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidRecipe, err)
	}
	if r.ToVersion == "" {
		return nil, fmt.Errorf("%w: recipe needs a to_version", types.ErrInvalidRecipe)
	}
	if r.NameTemplate == "" {
		r.NameTemplate = "migrated_{name}"
	}
	for _, rules := range [][]Rule{r.FeatureTemplates, r.DeviceTemplates} {
		for i := range rules {
			rules[i].matchers = make(map[string]*regexp.Regexp, len(rules[i].Match))
			for field, pattern := range rules[i].Match {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return nil, fmt.Errorf("%w: bad match regex %q for %s: %s",
						types.ErrInvalidRecipe, pattern, field, err)
				}
				rules[i].matchers[field] = re
			}
		}
	}
	return &r, nil
}

// Applies indicates whether the recipe covers a backup taken from the
// given controller version.
func (r *Recipe) Applies(version string) bool {
	for _, from := range r.FromVersions {
		if types.VersionAtLeast(version, from) && !types.VersionNewer(from, version) {
			return true
		}
	}
	return false
}

// ApplyFeature runs the feature template rules over one body, in place.
// It returns the number of rules that fired.
func (r *Recipe) ApplyFeature(body map[string]any) int {
	return apply(r.FeatureTemplates, body)
}

// ApplyDevice runs the device template rules over one body, in place.
func (r *Recipe) ApplyDevice(body map[string]any) int {
	return apply(r.DeviceTemplates, body)
}

func apply(rules []Rule, body map[string]any) int {
	fired := 0
	for i := range rules {
		if !rules[i].matches(body) {
			continue
		}
		fired++
		for path, value := range rules[i].Set {
			setPath(body, path, value)
		}
		for _, path := range rules[i].Remove {
			removePath(body, path)
		}
	}
	return fired
}

func (rule *Rule) matches(body map[string]any) bool {
	for field, re := range rule.matchers {
		value, ok := getPath(body, field).(string)
		if !ok || !re.MatchString(value) {
			return false
		}
	}
	return true
}

// Dotted-path accessors over nested map[string]any bodies.

func getPath(body map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = body
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func setPath(body map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := body
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func removePath(body map[string]any, path string) {
	parts := strings.Split(path, ".")
	current := body
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}
