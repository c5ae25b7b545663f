package catalog

import "github.com/netops-tools/sastre/pkg/types"

// Well-known paths consumed by the tasks but not tied to a single kind.
const (
	PathDeviceTemplateAttached = "template/device/config/attached" // + /<templateId>
	PathDeviceTemplateInput    = "template/device/config/input"
	PathAttachFeature          = "template/device/config/attachfeature"
	PathAttachCLI              = "template/device/config/attachcli"
	PathDeviceModeCLI          = "template/config/device/mode/cli"
	PathVsmartActivate         = "template/policy/vsmart/activate"   // + /<policyId>
	PathVsmartDeactivate       = "template/policy/vsmart/deactivate" // + /<policyId>
	PathVsmartConnectivity     = "template/policy/vsmart/connectivity/status"
	PathEdgeCertificate        = "certificate/vedge/list"
	PathEdgeCertificateSync    = "certificate/vedge/list?action=push"
	PathCertificateSave        = "certificate/save/vedge/list"
	PathEdgeInventory          = "system/device/vedges"
	PathControlInventory       = "system/device/controllers"
	PathDeviceConfig           = "template/config/attached"         // + /<uuid>
	PathDeviceConfigRFS        = "template/config/running"          // + /<uuid>
	PathSettingsVbond          = "settings/configuration/device"
)

func deviceTemplate() Descriptor {
	return Descriptor{
		Kind: "template_device",
		Tag:  types.TagDeviceTemplate,
		Info: "device template",
		Path: ApiPath{
			Get:    "template/device/object",
			Post:   "template/device/feature",
			Put:    "template/device",
			Delete: "template/device",
		},
		AltPost:   "template/device/cli",
		StoreDir:  "device_templates/template",
		IDField:   "templateId",
		NameField: "templateName",
		PostFiltered: []string{
			"attachedDevicesCount", "devicesAttached", "templateAttached",
		},
		SkipCmp: []string{"createdBy", "createdOn", "lastUpdatedBy", "lastUpdatedOn"},
	}
}

func featureTemplate() Descriptor {
	return Descriptor{
		Kind: "template_feature",
		Tag:  types.TagFeatureTemplate,
		Info: "feature template",
		Path: ApiPath{
			Get:    "template/feature/object",
			Post:   "template/feature",
			Put:    "template/feature",
			Delete: "template/feature",
		},
		StoreDir:  "feature_templates",
		IDField:   "templateId",
		NameField: "templateName",
		PostFiltered: []string{
			"attachedMastersCount", "devicesAttached", "templateAttached",
		},
		SkipCmp: []string{"createdBy", "createdOn", "lastUpdatedBy", "lastUpdatedOn"},
	}
}

func configGroup() Descriptor {
	return Descriptor{
		Kind:       "config_group",
		Tag:        types.TagConfigGroup,
		Info:       "config group",
		Path:       crud("v1/config-group"),
		StoreDir:   "config_groups",
		IDField:    "id",
		NameField:  "name",
		MinVersion: "20.7",
	}
}

func featureProfile(sub, dir, info string) Descriptor {
	return Descriptor{
		Kind:       types.Kind("feature_profile/" + sub),
		Tag:        types.TagFeatureProfile,
		Info:       info,
		Path:       crud("v1/feature-profile/sdwan/" + sub),
		StoreDir:   "feature_profiles/" + dir,
		IDField:    "profileId",
		NameField:  "profileName",
		MinVersion: "20.7",
	}
}

func policyTemplate(kind types.Kind, tag types.Tag, sub, dir, info, minVersion string) Descriptor {
	return Descriptor{
		Kind: kind,
		Tag:  tag,
		Info: info,
		Path: objectCrud(
			"template/policy/"+sub+"/definition",
			"template/policy/"+sub,
		),
		StoreDir:   "policy_templates/" + dir,
		IDField:    "policyId",
		NameField:  "policyName",
		MinVersion: minVersion,
	}
}

func policyDef(sub, dir, info string, minVersion ...string) Descriptor {
	min := ""
	if len(minVersion) > 0 {
		min = minVersion[0]
	}
	return Descriptor{
		Kind:       types.Kind("policy_definition/" + sub),
		Tag:        types.TagPolicyDefinition,
		Info:       info + " policy definition",
		Path:       crud("template/policy/definition/" + sub),
		StoreDir:   "policy_definitions/" + dir,
		IDField:    "definitionId",
		NameField:  "name",
		MinVersion: min,
	}
}

func policyList(sub, dir, info string, minVersion ...string) Descriptor {
	min := ""
	if len(minVersion) > 0 {
		min = minVersion[0]
	}
	return Descriptor{
		Kind:       types.Kind("policy_list/" + sub),
		Tag:        types.TagPolicyList,
		Info:       info + " list",
		Path:       crud("template/policy/list/" + sub),
		StoreDir:   "policy_lists/" + dir,
		IDField:    "listId",
		NameField:  "name",
		MinVersion: min,
	}
}

// entries is the catalog: one descriptor per item kind, grouped by tag in
// delete order (dependents before the kinds they reference).
var entries = []Descriptor{
	deviceTemplate(),

	configGroup(),

	featureTemplate(),

	featureProfile("system", "System", "system feature profile"),
	featureProfile("transport", "Transport", "transport feature profile"),
	featureProfile("service", "Service", "service feature profile"),
	featureProfile("cli", "CLI", "CLI feature profile"),
	featureProfile("policy-object", "PolicyObject", "policy-object feature profile"),

	policyTemplate("policy_vsmart", types.TagPolicyVsmart, "vsmart", "vSmart", "VSMART policy", ""),
	policyTemplate("policy_vedge", types.TagPolicyVedge, "vedge", "vEdge", "edge policy", ""),
	policyTemplate("policy_security", types.TagPolicySecurity, "security", "Security", "security policy", ""),
	policyTemplate("policy_voice", types.TagPolicyVoice, "voice", "Voice", "voice policy", "20.1"),

	{
		Kind:       "policy_customapp",
		Tag:        types.TagPolicyCustomApp,
		Info:       "custom application policy",
		Path:       crud("template/policy/customapp"),
		StoreDir:   "policy_templates/CustomApp",
		IDField:    "appId",
		NameField:  "appName",
		MinVersion: "20.1",
	},

	policyDef("data", "Data", "data"),
	policyDef("mesh", "Mesh", "mesh"),
	policyDef("hubandspoke", "HubAndSpoke", "hub-and-spoke"),
	policyDef("rewriterule", "RewriteRule", "rewrite-rule"),
	policyDef("acl", "ACLv4", "ACL"),
	policyDef("aclv6", "ACLv6", "ACLv6"),
	policyDef("deviceaccesspolicy", "DeviceAccess", "device access"),
	policyDef("deviceaccesspolicyv6", "DeviceAccessV6", "IPv6 device access"),
	policyDef("cflowd", "Cflowd", "cflowd"),
	policyDef("qosmap", "QoSMap", "QOS-map"),
	policyDef("urlfiltering", "URLFiltering", "URL-filtering"),
	policyDef("zonebasedfw", "ZoneBasedFW", "zone-based FW"),
	policyDef("approute", "AppRoute", "appRoute"),
	policyDef("vpnmembershipgroup", "VpnMembershipGroup", "VPN membership"),
	policyDef("control", "Control", "control"),
	policyDef("dnssecurity", "DNSSecurity", "DNS security"),
	policyDef("intrusionprevention", "IntrusionPrevention", "intrusion-prevention"),
	policyDef("advancedMalwareProtection", "AMP", "advanced malware protection"),
	policyDef("ssldecryption", "SSLDecryption", "SSL decryption"),
	policyDef("sslutdprofile", "SSLUtdProfile", "SSL UTD profile"),
	policyDef("fxoport", "FXOPort", "FXO port", "20.1"),
	policyDef("fxsport", "FXSPort", "FXS port", "20.1"),
	policyDef("fxsdidport", "FXSDIDPort", "FXS-DID port", "20.1"),
	policyDef("dialpeer", "DialPeer", "dial-peer", "20.1"),
	policyDef("srstphoneprofile", "SRSTPhoneProfile", "SRST phone profile", "20.1"),

	{
		Kind:       "policy_profile/translation",
		Tag:        types.TagPolicyProfile,
		Info:       "translation profile",
		Path:       crud("template/policy/list/translationprofile"),
		StoreDir:   "policy_profiles/Translation",
		IDField:    "listId",
		NameField:  "name",
		MinVersion: "20.1",
	},

	policyList("app", "App", "application"),
	policyList("localapp", "LocalApp", "local-application"),
	policyList("color", "Color", "color"),
	policyList("community", "Community", "community"),
	policyList("extcommunity", "ExtCommunity", "extended-community"),
	policyList("dataprefix", "DataPrefix", "data-prefix"),
	policyList("dataipv6prefix", "DataIPv6Prefix", "data-ipv6-prefix"),
	policyList("prefix", "Prefix", "prefix"),
	policyList("ipv6prefix", "IPv6Prefix", "ipv6-prefix"),
	policyList("aspath", "ASPath", "as-path"),
	policyList("class", "Class", "class"),
	policyList("mirror", "Mirror", "mirror"),
	policyList("policer", "Policer", "policer"),
	policyList("site", "Site", "site"),
	policyList("sla", "SLA", "SLA-class"),
	policyList("tloc", "TLOC", "TLOC"),
	policyList("vpn", "VPN", "VPN"),
	policyList("zone", "Zone", "zone"),
	policyList("localdomain", "LocalDomain", "local-domain"),
	policyList("ipssignature", "IPSSignature", "IPS-signature"),
	policyList("urlwhitelist", "URLWhiteList", "URL-whitelist"),
	policyList("urlblacklist", "URLBlackList", "URL-blacklist"),
	policyList("umbrelladata", "UmbrellaData", "umbrella-data"),
	policyList("umbrellasecret", "UmbrellaSecret", "umbrella secret"),
	policyList("tgapikey", "TGApiKey", "threat grid api key"),
	policyList("port", "Port", "port"),
	policyList("protocolname", "ProtocolName", "protocol-name"),
	policyList("geolocation", "GeoLocation", "geo-location"),
	policyList("fqdn", "FQDN", "FQDN", "20.1"),
	policyList("translationrules", "TranslationRules", "translation rules", "20.1"),
	policyList("supervisorydisc", "SupervisoryDisc", "supervisory disconnect", "20.1"),
	policyList("mediaprofile", "MediaProfile", "media profile", "20.1"),
	policyList("faxprotocol", "FaxProtocol", "fax protocol", "20.1"),
}
