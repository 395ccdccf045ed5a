package broker

import (
	"github.com/invopop/jsonschema"

	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
	"github.com/GriffinCanCode/scriptgate/internal/shared/types"
)

// Schemas describes the params of every capability, keyed by capability
// name, plus the invocation envelope under "invocation".
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}

	requests := []Request{
		&FetchRequest{},
		&DownloadRequest{},
		&CookieRequest{},
		&GetValueRequest{},
		&SetValueRequest{},
		&DeleteValueRequest{},
		&ListValuesRequest{},
		&NotificationRequest{},
		&RegisterMenuRequest{},
		&UnregisterMenuRequest{},
		&InfoRequest{},
	}

	out := make(map[string]*jsonschema.Schema, len(requests)+1)
	for _, r := range requests {
		s := reflector.Reflect(r)
		s.Title = r.Capability()
		out[r.Capability()] = s
	}
	out["invocation"] = reflector.Reflect(&types.Invocation{})
	return out
}

// Capabilities lists the capability names the broker understands.
func Capabilities() []string {
	return []string{
		policy.CapabilityInfo,
		policy.CapabilityFetch,
		policy.CapabilityDownload,
		policy.CapabilityCookie,
		policy.CapabilityGetValue,
		policy.CapabilitySetValue,
		policy.CapabilityDeleteValue,
		policy.CapabilityListValues,
		policy.CapabilityNotification,
		policy.CapabilityRegisterMenu,
		policy.CapabilityUnregisterMenu,
	}
}
