package broker

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
	httpx "github.com/GriffinCanCode/scriptgate/internal/providers/http"
)

const readChunk = 32 << 10

// FetchResult is the completed payload of a fetch.
type FetchResult struct {
	FinalURL        string `json:"finalUrl"`
	Status          int    `json:"status"`
	StatusText      string `json:"statusText"`
	ResponseHeaders string `json:"responseHeaders"`
	ContentType     string `json:"contentType"`
	ResponseType    string `json:"responseType,omitempty"`
	// Response is text, or base64 when Encoding is "base64".
	Response string `json:"response"`
	Encoding string `json:"encoding,omitempty"`
}

func (b *Broker) fetch(ctx context.Context, inv invocation, r *FetchRequest, progress progressFunc) (any, error) {
	if b.fetcher == nil {
		return nil, errUnavailable
	}

	headers := make(map[string]string, len(r.Headers)+1)
	for k, v := range r.Headers {
		headers[k] = v
	}
	if r.includeCredentials() && b.cookies != nil {
		if header := b.cookieHeader(r.URL); header != "" {
			headers["Cookie"] = header
		}
	}

	ctx = b.withNetworkPolicy(ctx, inv, policy.CapabilityFetch)

	var body []byte
	if r.Data != "" {
		body = []byte(r.Data)
	}
	resp, err := b.fetcher.Do(ctx, httpx.Request{Method: r.Method, URL: r.URL, Headers: headers, Body: body})
	if err != nil {
		b.reportBlockedDial(inv, policy.CapabilityFetch, r.URL, err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := b.stream(ctx, resp.Body, resp.ContentLength, KindFetch, progress)
	if err != nil {
		return nil, err
	}

	result := &FetchResult{
		FinalURL:        resp.FinalURL,
		Status:          resp.Status,
		StatusText:      resp.StatusText,
		ResponseHeaders: httpx.FormatHeaders(resp.Header),
		ContentType:     httpx.ContentType(resp.Header.Get("Content-Type"), data),
		ResponseType:    r.ResponseType,
	}
	switch r.ResponseType {
	case "arraybuffer", "blob":
		result.Response = base64.StdEncoding.EncodeToString(data)
		result.Encoding = "base64"
	default:
		result.Response = httpx.DecodeText(data, result.ContentType)
	}
	return result, nil
}

// withNetworkPolicy makes every redirect hop pass CanConnect and lets the
// dial-time address check honour the user's grants for this script.
func (b *Broker) withNetworkPolicy(ctx context.Context, inv invocation, capability string) context.Context {
	ctx = httpx.WithHostGrant(ctx, func(host string) bool {
		allow, found := b.perms.GetPermission(inv.script.ID, policy.NormalizeHost(host))
		return found && allow
	})
	return httpx.WithRedirectCheck(ctx, func(url string) error {
		d := b.policy.CanConnect(inv.script.ID, &inv.script.Metadata, url, b.perms)
		if !d.Allowed {
			b.reportDenial(inv.script, capability, inv.correlationID, url, d)
		}
		return d.Err()
	})
}

// reportBlockedDial reports a denial raised while dialing. Redirect denials
// were already reported by the redirect check.
func (b *Broker) reportBlockedDial(inv invocation, capability, url string, err error) {
	var denial *policy.DenialError
	if !errors.As(err, &denial) || errors.Is(err, httpx.ErrRedirectBlocked) {
		return
	}
	b.reportDenial(inv.script, capability, inv.correlationID, url,
		policy.Decision{Reason: denial.Reason, Message: denial.Message})
}

func (b *Broker) cookieHeader(url string) string {
	list, err := b.cookies.List(url, "")
	if err != nil {
		return ""
	}
	pairs := make([]string, 0, len(list))
	for _, c := range list {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// stream reads r to the end, reporting progress after every chunk.
func (b *Broker) stream(ctx context.Context, r io.Reader, total int64, kind Kind, progress progressFunc) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, readErr := r.Read(chunk)
		if n > 0 {
			if b.cfg.MaxBodyBytes > 0 && int64(buf.Len()+n) > b.cfg.MaxBodyBytes {
				return nil, fmt.Errorf("response exceeds %d bytes", b.cfg.MaxBodyBytes)
			}
			buf.Write(chunk[:n])
			b.metrics.AddBytesStreamed(string(kind), n)
			progress(progressData(int64(buf.Len()), total))
		}
		if readErr == io.EOF {
			return buf.Bytes(), nil
		}
		if readErr != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, readErr
		}
	}
}
