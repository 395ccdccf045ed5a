package broker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
)

var (
	ErrUnknownCapability = errors.New("unknown capability")
	ErrInvalidParams     = errors.New("invalid params")
)

var validate = validator.New()

// Request is the decoded params of one Invocation. There is one concrete
// type per capability.
type Request interface {
	Capability() string
}

// targeted requests name a URL that CanConnect must approve.
type targeted interface {
	Request
	Target() string
}

// FetchRequest performs an HTTP request.
type FetchRequest struct {
	Method       string            `json:"method,omitempty" validate:"omitempty,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS get head post put patch delete options"`
	URL          string            `json:"url" validate:"required"`
	Headers      map[string]string `json:"headers,omitempty"`
	Data         string            `json:"data,omitempty"`
	ResponseType string            `json:"responseType,omitempty" validate:"omitempty,oneof=text json arraybuffer blob document"`
	// Credentials is "omit" unless "include" is requested.
	Credentials string `json:"credentials,omitempty" validate:"omitempty,oneof=omit include same-origin"`
	Anonymous   bool   `json:"anonymous,omitempty"`
	Timeout     int    `json:"timeout,omitempty" validate:"gte=0" jsonschema:"description=milliseconds"`
}

func (*FetchRequest) Capability() string { return policy.CapabilityFetch }
func (r *FetchRequest) Target() string   { return r.URL }

// includeCredentials reports whether the store's cookies go with the request.
func (r *FetchRequest) includeCredentials() bool {
	return r.Credentials == "include" && !r.Anonymous
}

// DownloadRequest saves a URL through the host download facility.
type DownloadRequest struct {
	URL     string            `json:"url" validate:"required"`
	Name    string            `json:"name,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout int               `json:"timeout,omitempty" validate:"gte=0" jsonschema:"description=milliseconds"`
}

func (*DownloadRequest) Capability() string { return policy.CapabilityDownload }
func (r *DownloadRequest) Target() string   { return r.URL }

// Cookie actions.
const (
	CookieList   = "list"
	CookieSet    = "set"
	CookieDelete = "delete"
)

// CookieRequest lists, sets or deletes cookies for URL.
type CookieRequest struct {
	Action         string  `json:"action" validate:"required,oneof=list set delete"`
	URL            string  `json:"url" validate:"required"`
	Name           string  `json:"name,omitempty" validate:"required_unless=Action list"`
	Value          string  `json:"value,omitempty"`
	Domain         string  `json:"domain,omitempty"`
	Path           string  `json:"path,omitempty"`
	Secure         bool    `json:"secure,omitempty"`
	HTTPOnly       bool    `json:"httpOnly,omitempty"`
	ExpirationDate float64 `json:"expirationDate,omitempty" validate:"gte=0"`
	SameSite       string  `json:"sameSite,omitempty" validate:"omitempty,oneof=unspecified no_restriction lax strict"`
}

func (*CookieRequest) Capability() string { return policy.CapabilityCookie }
func (r *CookieRequest) Target() string   { return r.URL }

// GetValueRequest reads a stored value, falling back to Default.
type GetValueRequest struct {
	Key     string          `json:"key" validate:"required"`
	Default json.RawMessage `json:"default,omitempty"`
}

func (*GetValueRequest) Capability() string { return policy.CapabilityGetValue }

// SetValueRequest stores a JSON value.
type SetValueRequest struct {
	Key   string          `json:"key" validate:"required"`
	Value json.RawMessage `json:"value" validate:"required"`
}

func (*SetValueRequest) Capability() string { return policy.CapabilitySetValue }

// DeleteValueRequest removes a stored value.
type DeleteValueRequest struct {
	Key string `json:"key" validate:"required"`
}

func (*DeleteValueRequest) Capability() string { return policy.CapabilityDeleteValue }

// ListValuesRequest lists stored keys.
type ListValuesRequest struct{}

func (*ListValuesRequest) Capability() string { return policy.CapabilityListValues }

// NotificationRequest posts a notification.
type NotificationRequest struct {
	Title string `json:"title,omitempty" validate:"max=256"`
	Text  string `json:"text" validate:"required_without=Title,max=4096"`
	Image string `json:"image,omitempty"`
}

func (*NotificationRequest) Capability() string { return policy.CapabilityNotification }

// RegisterMenuRequest adds a menu command for the current channel.
type RegisterMenuRequest struct {
	Caption string `json:"caption" validate:"required,max=256"`
}

func (*RegisterMenuRequest) Capability() string { return policy.CapabilityRegisterMenu }

// UnregisterMenuRequest removes a menu command.
type UnregisterMenuRequest struct {
	Key string `json:"key" validate:"required"`
}

func (*UnregisterMenuRequest) Capability() string { return policy.CapabilityUnregisterMenu }

// InfoRequest returns information about the script.
type InfoRequest struct{}

func (*InfoRequest) Capability() string { return policy.CapabilityInfo }

// newRequest returns an empty request for capability.
func newRequest(capability string) (Request, error) {
	switch policy.Canonical(capability) {
	case policy.CapabilityFetch:
		return &FetchRequest{}, nil
	case policy.CapabilityDownload:
		return &DownloadRequest{}, nil
	case policy.CapabilityCookie:
		return &CookieRequest{}, nil
	case policy.CapabilityGetValue:
		return &GetValueRequest{}, nil
	case policy.CapabilitySetValue:
		return &SetValueRequest{}, nil
	case policy.CapabilityDeleteValue:
		return &DeleteValueRequest{}, nil
	case policy.CapabilityListValues:
		return &ListValuesRequest{}, nil
	case policy.CapabilityNotification:
		return &NotificationRequest{}, nil
	case policy.CapabilityRegisterMenu:
		return &RegisterMenuRequest{}, nil
	case policy.CapabilityUnregisterMenu:
		return &UnregisterMenuRequest{}, nil
	case policy.CapabilityInfo:
		return &InfoRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}
}

// DecodeRequest decodes and validates params for capability.
func DecodeRequest(capability string, params json.RawMessage) (Request, error) {
	req, err := newRequest(capability)
	if err != nil {
		return nil, err
	}

	if trimmed := bytes.TrimSpace(params); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := sonic.Unmarshal(trimmed, req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}

	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return req, nil
}
