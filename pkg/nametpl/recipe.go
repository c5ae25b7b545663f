package nametpl

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/types"
)

// recipeFile is the YAML shape of a transform recipe.
type recipeFile struct {
	Tag          string `yaml:"tag"`
	NameTemplate *struct {
		Regex     string `yaml:"regex"`
		NameRegex string `yaml:"name_regex"`
	} `yaml:"name_template"`
	NameMap map[string]string `yaml:"name_map"`
}

// Recipe selects items of one tag and decides their new names. Explicit
// name_map entries win over the name template; items matching neither are
// left alone.
type Recipe struct {
	Tag      types.Tag
	nameMap  map[string]string
	filter   *regexp.Regexp
	template *Template
}

// LoadRecipe reads and validates a YAML transform recipe.
func LoadRecipe(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe %s: %w", path, err)
	}
	return ParseRecipe(data)
}

// ParseRecipe validates recipe YAML.
func ParseRecipe(data []byte) (*Recipe, error) {
	var file recipeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidRecipe, err)
	}

	tags, err := catalog.ParseTags([]string{file.Tag})
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tag %q", types.ErrInvalidRecipe, file.Tag)
	}
	r := &Recipe{Tag: tags[0], nameMap: file.NameMap}

	if file.NameTemplate != nil {
		r.template, err = Compile(file.NameTemplate.NameRegex)
		if err != nil {
			return nil, err
		}
		if file.NameTemplate.Regex != "" {
			r.filter, err = regexp.Compile(file.NameTemplate.Regex)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid item filter regex: %s",
					types.ErrInvalidRecipe, err)
			}
		}
	}
	if r.template == nil && len(r.nameMap) == 0 {
		return nil, fmt.Errorf("%w: recipe needs a name_template or a name_map",
			types.ErrInvalidRecipe)
	}
	return r, nil
}

// Rename returns the new name for an item, or false when the recipe does
// not select it.
func (r *Recipe) Rename(name string) (string, bool) {
	if newName, ok := r.nameMap[name]; ok {
		return newName, true
	}
	if r.template == nil {
		return "", false
	}
	if r.filter != nil && !r.filter.MatchString(name) {
		return "", false
	}
	return r.template.Render(name), true
}
