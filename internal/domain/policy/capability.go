package policy

import "strings"

// Capability names as scripts declare them with @grant.
const (
	CapabilityInfo           = "GM_info"
	CapabilityFetch          = "GM_xmlhttpRequest"
	CapabilityDownload       = "GM_download"
	CapabilityCookie         = "GM_cookie"
	CapabilityGetValue       = "GM_getValue"
	CapabilitySetValue       = "GM_setValue"
	CapabilityDeleteValue    = "GM_deleteValue"
	CapabilityListValues     = "GM_listValues"
	CapabilityNotification   = "GM_notification"
	CapabilityRegisterMenu   = "GM_registerMenuCommand"
	CapabilityUnregisterMenu = "GM_unregisterMenuCommand"
	CapabilityUnsafeWindow   = "unsafeWindow"
	grantNone                = "none"
)

// dottedSpellings are GM.* names whose GM_* form is not a plain rename.
var dottedSpellings = map[string]string{
	"GM.xmlHttpRequest": CapabilityFetch,
	"GM.info":           CapabilityInfo,
}

// Canonical maps a capability name to its GM_* spelling. "info" and the
// GM.* forms ("GM.setValue", "GM.xmlHttpRequest") are accepted.
func Canonical(name string) string {
	if name == "info" {
		return CapabilityInfo
	}
	if c, ok := dottedSpellings[name]; ok {
		return c
	}
	if rest, ok := strings.CutPrefix(name, "GM."); ok {
		return "GM_" + rest
	}
	return name
}
