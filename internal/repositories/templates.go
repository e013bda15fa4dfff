package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"docforge/internal/pkg/errors"
)

// TemplateVersion is one published revision of a style template, including
// its binary asset.
type TemplateVersion struct {
	ID    string
	Asset []byte
}

// TemplateRepository is the backing store behind the template asset cache.
type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// ActiveVersionID resolves the current published version of a style
// template without fetching its asset, so a cache hit skips the blob read
// entirely. An empty styleID selects the default template.
func (r *TemplateRepository) ActiveVersionID(ctx context.Context, styleID string) (string, error) {
	var (
		id  string
		err error
	)
	if styleID == "" {
		err = r.db.QueryRow(ctx, `
			SELECT v.id
			FROM style_template_versions v
			JOIN style_templates t ON t.id = v.style_template_id
			WHERE t.is_default AND v.published_at IS NOT NULL
			ORDER BY v.published_at DESC
			LIMIT 1
		`).Scan(&id)
	} else {
		err = r.db.QueryRow(ctx, `
			SELECT id
			FROM style_template_versions
			WHERE style_template_id=$1 AND published_at IS NOT NULL
			ORDER BY published_at DESC
			LIMIT 1
		`, styleID).Scan(&id)
	}
	if err != nil {
		return "", errors.DataMissing("style template", styleID)
	}
	return id, nil
}

// Version fetches one template version by its pinned ID.
func (r *TemplateRepository) Version(ctx context.Context, versionID string) (*TemplateVersion, error) {
	var v TemplateVersion
	err := r.db.QueryRow(ctx, `
		SELECT id, asset
		FROM style_template_versions
		WHERE id=$1
	`, versionID).Scan(&v.ID, &v.Asset)
	if err != nil {
		return nil, errors.DataMissing("template version", versionID)
	}
	return &v, nil
}

// RecentVersions lists the most recently published template versions, used
// by the startup pre-warm pass.
func (r *TemplateRepository) RecentVersions(ctx context.Context, limit int) ([]TemplateVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, asset
		FROM style_template_versions
		WHERE published_at IS NOT NULL
		ORDER BY published_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TemplateVersion
	for rows.Next() {
		var v TemplateVersion
		if err := rows.Scan(&v.ID, &v.Asset); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
