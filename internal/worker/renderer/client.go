// Package renderer is the client contract for the external document
// renderer. The renderer is a pure collaborator: assembled contract data
// plus a template asset in, native-format bytes out. Caching is not its
// concern.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Section is one pinned content version resolved to its text.
type Section struct {
	VersionID string `json:"version_id"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body"`
}

// Spec is the full render input. Template is the raw template asset; the
// JSON encoder base64s it on the wire.
type Spec struct {
	ContractInstanceID string         `json:"contract_instance_id"`
	Sections           []Section      `json:"sections"`
	Answers            map[string]any `json:"answers"`
	StyleID            string         `json:"style_id,omitempty"`
	Template           []byte         `json:"template"`
}

type Client interface {
	Render(ctx context.Context, spec Spec) ([]byte, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// Render posts the spec and returns the rendered document bytes.
func (c *HTTPClient) Render(ctx context.Context, spec Spec) ([]byte, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 500))
		return nil, fmt.Errorf("renderer http %d: %s", res.StatusCode, msg)
	}

	out, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("renderer returned an empty document")
	}
	return out, nil
}
