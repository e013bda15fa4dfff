package repositories

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"docforge/internal/pkg/errors"
	"docforge/internal/worker/renderer"
)

// RenderData is the assembled input for one render: the contract's pinned
// content, the interview answers and the style reference. Together with the
// output format it fully determines the rendered bytes.
type RenderData struct {
	ContractInstanceID string
	VersionIDs         []string
	Sections           []renderer.Section
	Answers            map[string]any
	StyleTemplateID    string
}

// ContractRepository loads render data from the content-resolution side of
// the application. Only the read path lives here; authoring and versioning
// are owned elsewhere.
type ContractRepository struct {
	db *pgxpool.Pool
}

func NewContractRepository(db *pgxpool.Pool) *ContractRepository {
	return &ContractRepository{db: db}
}

func (r *ContractRepository) LoadRenderData(ctx context.Context, contractInstanceID string) (*RenderData, error) {
	var (
		answersJSON []byte
		styleID     *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT answers_json, style_template_id
		FROM contract_instances
		WHERE id=$1
	`, contractInstanceID).Scan(&answersJSON, &styleID)
	if err != nil {
		return nil, errors.DataMissing("contract instance", contractInstanceID)
	}

	data := &RenderData{ContractInstanceID: contractInstanceID}
	if styleID != nil {
		data.StyleTemplateID = *styleID
	}
	if len(answersJSON) > 0 {
		if err := json.Unmarshal(answersJSON, &data.Answers); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeValidation,
				"contracts.load", "contract answers are not valid JSON")
		}
	}

	rows, err := r.db.Query(ctx, `
		SELECT v.id, v.title, v.body
		FROM contract_pins p
		JOIN content_versions v ON v.id = p.content_version_id
		WHERE p.contract_instance_id=$1
		ORDER BY p.position
	`, contractInstanceID)
	if err != nil {
		return nil, errors.Wrap(err, "contracts.load", "failed to load pinned content")
	}
	defer rows.Close()

	for rows.Next() {
		var s renderer.Section
		if err := rows.Scan(&s.VersionID, &s.Title, &s.Body); err != nil {
			return nil, errors.Wrap(err, "contracts.load", "failed to scan pinned content")
		}
		data.Sections = append(data.Sections, s)
		data.VersionIDs = append(data.VersionIDs, s.VersionID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "contracts.load", "failed to load pinned content")
	}

	if len(data.Sections) == 0 {
		return nil, errors.DataMissing("pinned content", contractInstanceID)
	}
	return data, nil
}
