// Package cdn fires an optional CDN cache-purge notification after a
// successful repo add, for deployments that front their public mirror
// with Cloudflare. It is a no-op unless configured.
package cdn

import (
	"context"
	"fmt"

	"github.com/cloudflare/cloudflare-go"

	"github.com/hfmc/hfmc-go/internal/log"
)

// Purger invalidates edge-cached copies of a repo's files after a fetch.
type Purger struct {
	api    *cloudflare.API
	zoneID string
	prefix string // e.g. "https://hf-mirror.example.com/"
}

// NewPurger builds a Purger from an API token and zone. Returns nil (a
// valid, inert value via the PurgeRepo no-op check) if token or zone is
// empty, so callers can construct it unconditionally from config.
func NewPurger(apiToken, zoneID, urlPrefix string) (*Purger, error) {
	if apiToken == "" || zoneID == "" {
		return nil, nil
	}
	api, err := cloudflare.NewWithAPIToken(apiToken)
	if err != nil {
		return nil, err
	}
	return &Purger{api: api, zoneID: zoneID, prefix: urlPrefix}, nil
}

// PurgeRepo invalidates every file in a repo's file list at the edge.
func (p *Purger) PurgeRepo(ctx context.Context, repoID, revision string, files []string) {
	if p == nil || p.api == nil {
		return
	}

	urls := make([]string, 0, len(files))
	for _, f := range files {
		urls = append(urls, fmt.Sprintf("%s%s/resolve/%s/%s", p.prefix, repoID, revision, f))
	}

	_, err := p.api.PurgeCache(ctx, p.zoneID, cloudflare.PurgeCacheRequest{Files: urls})
	if err != nil {
		log.Warn("cdn: purge failed", "repo", repoID, "revision", revision, "err", err)
	}
}
