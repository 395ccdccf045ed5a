package broker

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/scriptgate/internal/providers/cookies"
)

// CookieListResult is the completed payload of a cookie list.
type CookieListResult struct {
	Cookies []cookies.Cookie `json:"cookies"`
}

// CookieDeleteResult is the completed payload of a cookie delete.
type CookieDeleteResult struct {
	Removed int `json:"removed"`
}

func (b *Broker) cookie(ctx context.Context, r *CookieRequest) (any, error) {
	if b.cookies == nil {
		return nil, errUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch r.Action {
	case CookieList:
		list, err := b.cookies.List(r.URL, r.Name)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []cookies.Cookie{}
		}
		return &CookieListResult{Cookies: list}, nil
	case CookieSet:
		c, err := b.cookies.Set(cookies.SetDetails{
			URL:            r.URL,
			Name:           r.Name,
			Value:          r.Value,
			Domain:         r.Domain,
			Path:           r.Path,
			Secure:         r.Secure,
			HTTPOnly:       r.HTTPOnly,
			ExpirationDate: r.ExpirationDate,
			SameSite:       r.SameSite,
		})
		if err != nil {
			return nil, err
		}
		return &c, nil
	case CookieDelete:
		n, err := b.cookies.Delete(r.URL, r.Name)
		if err != nil {
			return nil, err
		}
		return &CookieDeleteResult{Removed: n}, nil
	default:
		return nil, fmt.Errorf("%w: cookie action %q", ErrInvalidParams, r.Action)
	}
}
