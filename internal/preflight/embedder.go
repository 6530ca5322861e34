package preflight

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// endpointProbeTimeout bounds how long a reachability probe waits
// before treating a local model server as unreachable.
const endpointProbeTimeout = 2 * time.Second

// CheckEmbedEndpoint probes the configured embedding server's health
// endpoint. Unreachable is a warning, not a failure: the embedder's own
// LoadModel call fails fast with a clear error if the server is still
// down by the time it's actually needed.
func (c *Checker) CheckEmbedEndpoint() CheckResult {
	return c.checkHTTPEndpoint("embed_endpoint", c.embedEndpoint)
}

// CheckRerankEndpoint probes the configured reranker server, if one is
// configured. An empty endpoint passes trivially: reranking is optional.
func (c *Checker) CheckRerankEndpoint() CheckResult {
	result := CheckResult{Name: "rerank_endpoint", Required: false}
	if c.rerankEndpoint == "" {
		result.Status = StatusPass
		result.Message = "reranking disabled (no rerank_endpoint configured)"
		return result
	}
	return c.checkHTTPEndpoint("rerank_endpoint", c.rerankEndpoint)
}

func (c *Checker) checkHTTPEndpoint(name, endpoint string) CheckResult {
	result := CheckResult{Name: name, Required: false}

	if endpoint == "" {
		result.Status = StatusWarn
		result.Message = "no endpoint configured"
		return result
	}

	ctx, cancel := context.WithTimeout(context.Background(), endpointProbeTimeout)
	defer cancel()

	url := strings.TrimRight(endpoint, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("invalid endpoint %s: %v", endpoint, err)
		return result
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s unreachable (checked again on first use)", endpoint)
		result.Details = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s returned HTTP %d", endpoint, resp.StatusCode)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s reachable", endpoint)
	return result
}
