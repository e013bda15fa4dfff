package processor

import (
	"fmt"

	"docforge/internal/docformat"
)

// ResultObjectKey is the canonical, externally visible location of a job's
// deliverable: {tenant}/exports/{jobId}.{format}.
func ResultObjectKey(tenantID, jobID string, format docformat.Format) string {
	return fmt.Sprintf("%s/exports/%s.%s", tenantID, jobID, format.Ext())
}
