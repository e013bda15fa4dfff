package processor

import (
	"context"
)

// loadTemplate resolves the active template version for a style and serves
// its asset through the in-process cache. Only a cache miss touches the
// blob column.
func (p *Processor) loadTemplate(ctx context.Context, styleID string) ([]byte, error) {
	versionID, err := p.templates.ActiveVersionID(ctx, styleID)
	if err != nil {
		return nil, err
	}

	if blob, ok := p.assetCache.Get(versionID); ok {
		return blob, nil
	}

	version, err := p.templates.Version(ctx, versionID)
	if err != nil {
		return nil, err
	}

	p.assetCache.Set(versionID, version.Asset, 0)
	return version.Asset, nil
}

// PrewarmTemplates loads the most recently published template versions into
// the asset cache so the first jobs after boot skip the cold fetch.
func (p *Processor) PrewarmTemplates(ctx context.Context, limit int) error {
	if limit <= 0 {
		return nil
	}

	versions, err := p.templates.RecentVersions(ctx, limit)
	if err != nil {
		return err
	}

	for _, v := range versions {
		p.assetCache.Set(v.ID, v.Asset, 0)
	}

	p.log.Info("template cache prewarmed", "templates", len(versions))
	return nil
}
