package query

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tscached/tscached/pkg/errs"
)

// ProxyRaw issues a verbatim GET or POST against path (e.g.
// "/api/v1/metricnames") on the same TSDB host:port ProxyToKairos talks
// to, and returns the raw response body unparsed (spec §6's metadata
// passthrough endpoints return the TSDB's response verbatim). body may be
// nil for a GET.
func (c *KairosClient) ProxyRaw(ctx context.Context, method, path string, query map[string]string, body []byte) ([]byte, error) {
	base, err := baseHostPort(c.baseURL)
	if err != nil {
		return nil, errs.NewBackendFailure("building metadata proxy url", err)
	}
	url := base + path
	if len(query) > 0 {
		url += "?"
		first := true
		for k, v := range query {
			if !first {
				url += "&"
			}
			url += k + "=" + v
			first = false
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errs.NewBackendFailure("building metadata proxy request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.NewBackendFailure("proxying to kairosdb", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewBackendFailure("reading kairosdb response", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, errs.NewBackendFailure(
			fmt.Sprintf("kairosdb returned %d", resp.StatusCode), fmt.Errorf("%s", string(respBody)))
	}
	return respBody, nil
}

// baseHostPort strips the datapoints/query suffix off baseURL, leaving
// "http://host:port" for the metadata endpoints to build their own paths
// against.
func baseHostPort(datapointsQueryURL string) (string, error) {
	const suffix = "/api/v1/datapoints/query"
	if len(datapointsQueryURL) <= len(suffix) || datapointsQueryURL[len(datapointsQueryURL)-len(suffix):] != suffix {
		return "", fmt.Errorf("unexpected kairos base url shape: %s", datapointsQueryURL)
	}
	return datapointsQueryURL[:len(datapointsQueryURL)-len(suffix)], nil
}
