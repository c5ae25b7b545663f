package catalog

import (
	"fmt"
	"sort"

	"github.com/netops-tools/sastre/pkg/types"
)

// ApiPath groups the controller API paths for the operations available on an
// item kind. An empty field means the operation is not supported.
type ApiPath struct {
	Get    string
	Post   string
	Put    string
	Delete string
}

// crud builds an ApiPath where every operation shares the same base path.
func crud(base string) ApiPath {
	return ApiPath{Get: base, Post: base, Put: base, Delete: base}
}

// objectCrud builds an ApiPath where GET uses a distinct object path while
// POST/PUT/DELETE share the base path (the usual policy layout).
func objectCrud(get, base string) ApiPath {
	return ApiPath{Get: get, Post: base, Put: base, Delete: base}
}

// Descriptor carries the static metadata for one item kind. The engine has
// no kind-specific code: reference extraction, identity and persistence are
// all driven by these fields.
type Descriptor struct {
	Kind types.Kind
	Tag  types.Tag
	Info string // human-friendly name used in log messages

	Path ApiPath
	// AltPost is used instead of Path.Post for CLI-type device templates.
	AltPost string

	// StoreDir is the directory for this kind under a backup workdir.
	StoreDir string

	IDField   string
	NameField string
	// FactoryDefaultField defaults to "factoryDefault" when empty.
	FactoryDefaultField string

	// MinVersion gates availability by controller version (major.minor).
	MinVersion string

	// PostFiltered lists extra body fields dropped when building POST
	// payloads, on top of the always-dropped set.
	PostFiltered []string
	// SkipCmp lists body fields excluded from equality comparison.
	SkipCmp []string
}

// FactoryDefault returns the configured factory-default field name.
func (d Descriptor) FactoryDefault() string {
	if d.FactoryDefaultField == "" {
		return "factoryDefault"
	}
	return d.FactoryDefaultField
}

// Available indicates whether the kind exists on a controller running the
// given version.
func (d Descriptor) Available(version string) bool {
	return types.VersionAtLeast(version, d.MinVersion)
}

// tagOrder is the order in which tags need to be deleted, considering their
// high-level dependencies. The reverse order is the push (restore) order.
var tagOrder = []types.Tag{
	types.TagDeviceTemplate,
	types.TagConfigGroup,
	types.TagFeatureTemplate,
	types.TagFeatureProfile,
	types.TagPolicyVsmart,
	types.TagPolicyVedge,
	types.TagPolicySecurity,
	types.TagPolicyVoice,
	types.TagPolicyCustomApp,
	types.TagPolicyDefinition,
	types.TagPolicyProfile,
	types.TagPolicyList,
}

// tagDependsOn maps each tag to the tags whose items may be referenced from
// bodies of that tag's kinds.
var tagDependsOn = map[types.Tag][]types.Tag{
	types.TagDeviceTemplate: {
		types.TagFeatureTemplate, types.TagPolicyVedge,
		types.TagPolicySecurity, types.TagPolicyVoice,
	},
	types.TagConfigGroup:     {types.TagFeatureProfile},
	types.TagFeatureTemplate: {types.TagPolicyList},
	types.TagFeatureProfile:  {types.TagPolicyList},
	types.TagPolicyVsmart:    {types.TagPolicyDefinition, types.TagPolicyList},
	types.TagPolicyVedge:     {types.TagPolicyDefinition, types.TagPolicyList},
	types.TagPolicySecurity:  {types.TagPolicyDefinition, types.TagPolicyList},
	types.TagPolicyVoice: {
		types.TagPolicyDefinition, types.TagPolicyProfile, types.TagPolicyList,
	},
	types.TagPolicyCustomApp:  {types.TagPolicyList},
	types.TagPolicyDefinition: {types.TagPolicyList},
	types.TagPolicyProfile:    {types.TagPolicyList},
	types.TagPolicyList:       nil,
}

// DependsOn returns the tags the given tag's kinds may reference.
func DependsOn(tag types.Tag) []types.Tag {
	return tagDependsOn[tag]
}

// Tags returns every selectable tag, including "all", sorted.
func Tags() []types.Tag {
	tags := make([]types.Tag, 0, len(tagOrder)+1)
	tags = append(tags, types.TagAll)
	tags = append(tags, tagOrder...)
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// ParseTags validates raw tag strings. Unknown tags are rejected.
func ParseTags(raw []string) ([]types.Tag, error) {
	valid := map[types.Tag]bool{types.TagAll: true}
	for _, t := range tagOrder {
		valid[t] = true
	}
	tags := make([]types.Tag, 0, len(raw))
	for _, s := range raw {
		t := types.Tag(s)
		if !valid[t] {
			return nil, fmt.Errorf("%w: %q (available: %s)", types.ErrInvalidTag, s, tagList())
		}
		tags = append(tags, t)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: at least one tag is required", types.ErrInvalidTag)
	}
	return tags, nil
}

func tagList() string {
	out := ""
	for i, t := range Tags() {
		if i > 0 {
			out += ", "
		}
		out += string(t)
	}
	return out
}

// OrderedTags yields the given tag plus the tags its kinds may reference,
// in delete order. Tag "all" yields every tag.
func OrderedTags(tag types.Tag) []types.Tag {
	if tag == types.TagAll {
		out := make([]types.Tag, len(tagOrder))
		copy(out, tagOrder)
		return out
	}
	found := false
	var out []types.Tag
	for _, t := range tagOrder {
		if t == tag {
			found = true
		}
		if found {
			out = append(out, t)
		}
	}
	return out
}

// Expand returns the descriptors selected by the given tags, filtered by
// controller version, in delete order. Pass reverse=true for push order
// (referenced kinds first). Within a tag, kinds keep table order.
func Expand(tags []types.Tag, version string, reverse bool) []Descriptor {
	selected := map[types.Tag]bool{}
	for _, tag := range tags {
		if tag == types.TagAll {
			for _, t := range tagOrder {
				selected[t] = true
			}
			break
		}
		selected[tag] = true
	}

	var out []Descriptor
	for _, tag := range tagOrder {
		if !selected[tag] {
			continue
		}
		for _, d := range entries {
			if d.Tag == tag && d.Available(version) {
				out = append(out, d)
			}
		}
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Lookup returns the descriptor for a kind.
func Lookup(kind types.Kind) (Descriptor, bool) {
	for _, d := range entries {
		if d.Kind == kind {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Size returns the number of registered kinds.
func Size() int {
	return len(entries)
}
