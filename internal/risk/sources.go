package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Source is a single verdict provider. Implementations query an external
// analysis backend and return its structured verdict. A nil error with a
// nil verdict is treated as a source failure by the engine.
type Source interface {
	Name() string
	Query(ctx context.Context, targetType TargetType, targetID, knowledgeContext string) (*RawVerdict, error)
}

// HTTPSource queries a remote assessment backend over JSON HTTP.
type HTTPSource struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSource creates a source that POSTs assessment requests to endpoint.
func NewHTTPSource(name, endpoint, apiKey string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Name() string { return s.name }

type sourceRequest struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Context    string `json:"context"`
}

// Query sends the target and its knowledge context to the backend and
// decodes the structured verdict from the response body.
func (s *HTTPSource) Query(ctx context.Context, targetType TargetType, targetID, knowledgeContext string) (*RawVerdict, error) {
	payload, err := json.Marshal(sourceRequest{
		TargetType: string(targetType),
		TargetID:   targetID,
		Context:    knowledgeContext,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source %s returned status %d: %s", s.name, resp.StatusCode, string(body))
	}

	var verdict RawVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("decoding verdict from %s: %w", s.name, err)
	}
	return &verdict, nil
}
