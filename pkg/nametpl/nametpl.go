// Package nametpl renders new item names from name templates and transform
// recipes.
//
// A name template is a string containing one or more {name} constructs,
// optionally carrying a regular expression: "{name <regex>}" replaces every
// regex match in the source name with the concatenation of its capturing
// groups, so pieces of the original name can be extracted and recombined.
package nametpl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/netops-tools/sastre/pkg/types"
)

var construct = regexp.MustCompile(`\{name(?:\s+(.*?))?\}`)

// Template is a compiled name template.
type Template struct {
	src   string
	parts []part
}

// part is one segment of the template: literal text, or a {name} construct
// with an optional extraction regex.
type part struct {
	literal string
	isName  bool
	regex   *regexp.Regexp
}

// Compile parses and validates a name template. The template must contain
// at least one {name} construct, and any embedded regex must compile and
// include at least one capturing group.
func Compile(src string) (*Template, error) {
	t := &Template{src: src}
	last := 0
	for _, loc := range construct.FindAllStringSubmatchIndex(src, -1) {
		if loc[0] > last {
			t.parts = append(t.parts, part{literal: src[last:loc[0]]})
		}
		p := part{isName: true}
		if loc[2] >= 0 {
			re, err := regexp.Compile(src[loc[2]:loc[3]])
			if err != nil {
				return nil, fmt.Errorf("%w: invalid regex in %q: %s",
					types.ErrInvalidRecipe, src, err)
			}
			if re.NumSubexp() == 0 {
				return nil, fmt.Errorf("%w: regex in %q must have at least one capturing group",
					types.ErrInvalidRecipe, src)
			}
			p.regex = re
		}
		t.parts = append(t.parts, p)
		last = loc[1]
	}
	if last < len(src) {
		t.parts = append(t.parts, part{literal: src[last:]})
	}

	for _, p := range t.parts {
		if p.isName {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: template %q must include the {name} variable",
		types.ErrInvalidRecipe, src)
}

// Render produces the new name for one source name. A {name <regex>}
// construct that matches nowhere in the source renders as the empty
// string.
func (t *Template) Render(name string) string {
	var out strings.Builder
	for _, p := range t.parts {
		switch {
		case !p.isName:
			out.WriteString(p.literal)
		case p.regex == nil:
			out.WriteString(name)
		default:
			if p.regex.FindStringIndex(name) == nil {
				continue
			}
			out.WriteString(p.regex.ReplaceAllString(name, groupsTemplate(p.regex)))
		}
	}
	return out.String()
}

func (t *Template) String() string { return t.src }

// groupsTemplate builds the replacement string "${1}${2}..." covering all
// capturing groups; groups that did not participate expand to nothing.
func groupsTemplate(re *regexp.Regexp) string {
	var b strings.Builder
	for i := 1; i <= re.NumSubexp(); i++ {
		fmt.Fprintf(&b, "${%d}", i)
	}
	return b.String()
}
