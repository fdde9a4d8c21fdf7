package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/worldline-go/klient"

	"github.com/flowloom/loom/internal/service"
	"github.com/flowloom/loom/internal/service/workflow"
)

const httpRequestTimeout = 10 * time.Second

var allowedHTTPMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
	http.MethodHead:   true,
}

func init() {
	workflow.RegisterNodeType("http_request", newHTTPRequest)
}

// httpRequest issues a single HTTP call with a fixed timeout: no
// templating, proxy, retry, or TLS-skip configuration, just a plain call
// against a literal URL and body.
type httpRequest struct {
	name    string
	url     string
	method  string
	headers map[string]string
	body    any
}

func newHTTPRequest(n service.WorkflowNode) (workflow.Noder, error) {
	r := &httpRequest{name: n.Name, method: http.MethodGet}

	if v, ok := n.Parameters["url"].(string); ok {
		r.url = v
	}
	if v, ok := n.Parameters["method"].(string); ok && v != "" {
		r.method = strings.ToUpper(v)
	}
	if v, ok := n.Parameters["headers"].(map[string]any); ok {
		r.headers = make(map[string]string, len(v))
		for k, hv := range v {
			r.headers[k] = fmt.Sprintf("%v", hv)
		}
	}
	if v, ok := n.Parameters["body"]; ok {
		r.body = v
	}

	return r, nil
}

func (r *httpRequest) Name() string { return r.name }
func (r *httpRequest) Kind() string { return "http_request" }

func (r *httpRequest) ValidateParameters() error {
	if r.url == "" {
		return &workflow.ValidationError{Node: r.name, Reason: "url is required"}
	}
	if !allowedHTTPMethods[r.method] {
		return &workflow.ValidationError{Node: r.name, Reason: fmt.Sprintf("unsupported method %q", r.method)}
	}
	return nil
}

func (r *httpRequest) Execute(ctx context.Context, _ *workflow.Context) (any, error) {
	var bodyReader io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, &workflow.NodeExecutionError{Node: r.name, Reason: "marshal request body", Cause: err}
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, bodyReader)
	if err != nil {
		return nil, &workflow.NodeExecutionError{Node: r.name, Reason: "build request", Cause: err}
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	client, err := klient.New(
		klient.WithLogger(slog.Default()),
		klient.WithDisableRetry(true),
		klient.WithDisableEnvValues(true),
		klient.WithTimeout(httpRequestTimeout),
	)
	if err != nil {
		return nil, &workflow.NodeExecutionError{Node: r.name, Reason: "create http client", Cause: err}
	}

	var status int
	var raw []byte
	if err := client.Do(req, func(resp *http.Response) error {
		status = resp.StatusCode
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		raw = data
		return nil
	}); err != nil {
		return nil, &workflow.NodeExecutionError{Node: r.name, Reason: "request failed", Cause: err}
	}

	result := map[string]any{
		"status":  status,
		"success": status >= 200 && status < 400,
		"raw":     string(raw),
	}

	var parsed any
	if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil {
		result["body"] = parsed
	}

	return result, nil
}
