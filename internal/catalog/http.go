package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, productID, variantID string) (*Product, error) {
	u := fmt.Sprintf("%s/products/%s", r.baseURL, url.PathEscape(productID))
	if variantID != "" {
		u += "?variant=" + url.QueryEscape(variantID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, ErrProductUnavailable
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var product Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	if product.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("catalog returned negative price for %s", productID)
	}

	return &product, nil
}
