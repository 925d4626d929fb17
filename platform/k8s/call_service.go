package k8s

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/agentware/agentctl/platform"
)

const defaultServicePort = 80

// CallService resolves to http://{name}.{namespace}:{port|default}/{path}
// and propagates the service's JSON response, per spec.md §4.2. A non-2xx
// response becomes errNonOKResponse, which activities treat as retryable.
func (p *Platform) CallService(ctx context.Context, req platform.CallServiceRequest) (map[string]any, error) {
	port := req.Port
	if port == 0 {
		port = defaultServicePort
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if req.Payload != nil {
		b, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("k8s: marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	url := fmt.Sprintf("http://%s.%s:%d/%s", req.Name, req.Namespace, port, req.Path)
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("k8s: build request to %s: %w", url, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("k8s: call service %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("k8s: read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %d: %s", errNonOKResponse, url, resp.StatusCode, string(raw))
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("k8s: decode response from %s: %w", url, err)
	}
	return out, nil
}

func intOrStringFromInt32(v int32) intstr.IntOrString {
	return intstr.FromInt32(v)
}
