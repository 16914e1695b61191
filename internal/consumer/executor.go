package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Executor hands a task payload to the external execution collaborator and
// returns its output. What happens inside the call (model routing, key
// masking, egress filtering) is entirely the collaborator's business; the
// consumer only sees output or a structured failure.
type Executor interface {
	Execute(ctx context.Context, payload string) (string, error)
}

// HTTPExecutor posts task payloads to the model-routing proxy and returns
// the response body as the task output.
type HTTPExecutor struct {
	endpoint string
	client   *http.Client
}

// NewHTTPExecutor creates an executor targeting the given endpoint.
func NewHTTPExecutor(endpoint string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Execute sends the payload and returns the collaborator's response body.
// Any non-2xx response is a structured failure, not a transport error, so
// the caller records it as a failed task rather than retrying.
func (e *HTTPExecutor) Execute(ctx context.Context, payload string) (string, error) {
	body, err := json.Marshal(map[string]string{"input": payload})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execution call failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read execution response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("execution returned HTTP %d: %s", resp.StatusCode, truncate(string(out), 200))
	}

	return string(out), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
