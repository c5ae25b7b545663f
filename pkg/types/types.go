package types

import (
	"strconv"
	"strings"
)

// Kind identifies a family of configuration items (e.g. "template_device",
// "policy_list/site"). It is the unit of catalog lookup.
type Kind string

// Tag is a human-friendly selector that expands to one or more kinds.
type Tag string

const (
	TagAll              Tag = "all"
	TagDeviceTemplate   Tag = "template_device"
	TagFeatureTemplate  Tag = "template_feature"
	TagConfigGroup      Tag = "config_group"
	TagFeatureProfile   Tag = "feature_profile"
	TagPolicyVsmart     Tag = "policy_vsmart"
	TagPolicyVedge      Tag = "policy_vedge"
	TagPolicySecurity   Tag = "policy_security"
	TagPolicyVoice      Tag = "policy_voice"
	TagPolicyCustomApp  Tag = "policy_customapp"
	TagPolicyDefinition Tag = "policy_definition"
	TagPolicyProfile    Tag = "policy_profile"
	TagPolicyList       Tag = "policy_list"
)

// Item is a single configuration artifact as retrieved from the controller
// or loaded from a backup. Body is kept opaque; per-kind metadata from the
// catalog tells the engine where identity fields live inside it.
type Item struct {
	Kind           Kind
	ID             string
	Name           string
	FactoryDefault bool
	ReadOnly       bool
	Owner          string
	Version        string // controller version at creation, may be empty
	Body           map[string]any
}

// IsProtected indicates the item must not be pushed or deleted as-is.
// Factory defaults and read-only items fall in this bucket, as do
// system-owned ones.
func (i Item) IsProtected() bool {
	return i.FactoryDefault || i.ReadOnly || i.Owner == "system"
}

// IndexEntry is one summary row of a per-kind index as persisted by the
// controller under the kind's list endpoint.
type IndexEntry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	FactoryDefault bool   `json:"factoryDefault,omitempty"`
	Version        string `json:"version,omitempty"`
	Attached       int    `json:"devicesAttached,omitempty"`
	Active         bool   `json:"isPolicyActivated,omitempty"`
	ConfigType     string `json:"configType,omitempty"`
	Omitted        bool   `json:"omitted,omitempty"` // body could not be backed up
}

// Index is the list of summaries for one kind.
type Index struct {
	Kind    Kind         `json:"kind"`
	Entries []IndexEntry `json:"entries"`
}

// FindByName returns the entry with the given name, or false when absent.
func (x Index) FindByName(name string) (IndexEntry, bool) {
	for _, entry := range x.Entries {
		if entry.Name == name {
			return entry, true
		}
	}
	return IndexEntry{}, false
}

// ActivePolicy returns the id and name of the active vSmart policy in this
// index, or empty strings when none is active.
func (x Index) ActivePolicy() (id, name string) {
	for _, entry := range x.Entries {
		if entry.Active {
			return entry.ID, entry.Name
		}
	}
	return "", ""
}

// ServerInfo records facts about the controller a backup was taken from.
type ServerInfo struct {
	Version  string `json:"serverVersion"`
	Hostname string `json:"hostname,omitempty"`
	Tenant   string `json:"tenant,omitempty"`
}

// Attachment records the binding of devices to a device template together
// with the variable values used on attach.
type Attachment struct {
	TemplateID   string              `json:"templateId"`
	TemplateName string              `json:"templateName"`
	Devices      []AttachedDevice    `json:"devices"`
	Values       []map[string]string `json:"values,omitempty"`
}

// AttachedDevice is one device bound to a device template.
type AttachedDevice struct {
	UUID        string `json:"uuid"`
	Personality string `json:"personality,omitempty"`
	HostName    string `json:"hostName,omitempty"`
	SystemIP    string `json:"systemIp,omitempty"`
}

// Device is one entry of the controller device inventory.
type Device struct {
	UUID        string `json:"uuid"`
	SystemIP    string `json:"systemIp"`
	HostName    string `json:"hostName"`
	SiteID      string `json:"siteId"`
	Model       string `json:"deviceModel"`
	Personality string `json:"personality"`
	Reachable   bool   `json:"reachable"`
}

// VersionAtLeast compares dotted controller versions considering only the
// major and minor fields. Maintenance differences do not affect REST payload
// compatibility, so they are ignored. Development builds may use forms such
// as "20.1.999-98".
func VersionAtLeast(version, minimum string) bool {
	if minimum == "" {
		return true
	}
	vMaj, vMin := parseVersion(version)
	mMaj, mMin := parseVersion(minimum)
	if vMaj != mMaj {
		return vMaj > mMaj
	}
	return vMin >= mMin
}

// VersionNewer indicates whether candidate is strictly newer than base,
// comparing major.minor only.
func VersionNewer(base, candidate string) bool {
	bMaj, bMin := parseVersion(base)
	cMaj, cMin := parseVersion(candidate)
	if cMaj != bMaj {
		return cMaj > bMaj
	}
	return cMin > bMin
}

func parseVersion(s string) (major, minor int) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '-' })
	if len(fields) > 0 {
		major, _ = strconv.Atoi(fields[0])
	}
	if len(fields) > 1 {
		minor, _ = strconv.Atoi(fields[1])
	}
	return major, minor
}
