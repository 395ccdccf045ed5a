package broker

import (
	"context"
	"encoding/json"

	"github.com/GriffinCanCode/scriptgate/internal/providers/cookies"
	"github.com/GriffinCanCode/scriptgate/internal/providers/download"
	httpx "github.com/GriffinCanCode/scriptgate/internal/providers/http"
	"github.com/GriffinCanCode/scriptgate/internal/providers/notify"
	"github.com/GriffinCanCode/scriptgate/internal/providers/storage"
)

// ValueStore is the per-script key/value persistence.
type ValueStore interface {
	GetValue(scriptID, key string) (json.RawMessage, bool)
	SetValue(scriptID, key string, value json.RawMessage) error
	DeleteValue(scriptID, key string) error
	ListValues(scriptID string) []string
}

// CookieStore is the host cookie store.
type CookieStore interface {
	List(url, name string) ([]cookies.Cookie, error)
	Set(details cookies.SetDetails) (cookies.Cookie, error)
	Delete(url, name string) (int, error)
}

// Fetcher sends HTTP requests. Redirect hops are checked through
// httpx.WithRedirectCheck on ctx, and the script's user grants travel as an
// httpx.HostGrant.
type Fetcher interface {
	Do(ctx context.Context, req httpx.Request) (*httpx.Response, error)
}

// Downloader is the host download facility.
type Downloader interface {
	Download(ctx context.Context, req download.Request, progress func(download.Progress)) (*download.Result, error)
}

// Notifier is the notification surface.
type Notifier interface {
	Notify(n notify.Notification) notify.Notification
}

var (
	_ ValueStore  = (*storage.Memory)(nil)
	_ CookieStore = (*cookies.Store)(nil)
	_ Fetcher     = (*httpx.Client)(nil)
	_ Downloader  = (*download.Manager)(nil)
	_ Notifier    = (*notify.Notifier)(nil)
)
