package broker

import (
	"context"

	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
	"github.com/GriffinCanCode/scriptgate/internal/providers/download"
)

func (b *Broker) download(ctx context.Context, inv invocation, r *DownloadRequest, progress progressFunc) (any, error) {
	if b.downloads == nil {
		return nil, errUnavailable
	}

	ctx = b.withNetworkPolicy(ctx, inv, policy.CapabilityDownload)
	result, err := b.downloads.Download(ctx, download.Request{URL: r.URL, Filename: r.Name, Headers: r.Headers}, func(p download.Progress) {
		progress(progressData(p.Loaded, p.Total))
	})
	if err != nil {
		b.reportBlockedDial(inv, policy.CapabilityDownload, r.URL, err)
		return nil, err
	}
	return result, nil
}
