package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Geo is the raw result of a geolocation lookup.
type Geo struct {
	IP      string
	Country string
	ISP     string
	Org     string
	Proxy   bool
	Hosting bool
	Mobile  bool
}

// GeoClient looks up geolocation data for an IP address or resolvable host.
type GeoClient interface {
	Lookup(ctx context.Context, host string) (*Geo, error)
}

// HTTPGeoClient queries an ip-api style JSON endpoint.
type HTTPGeoClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGeoClient(baseURL string) *HTTPGeoClient {
	return &HTTPGeoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

type geoResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
	ISP     string `json:"isp"`
	Org     string `json:"org"`
	Proxy   bool   `json:"proxy"`
	Hosting bool   `json:"hosting"`
	Mobile  bool   `json:"mobile"`
	Query   string `json:"query"`
}

func (c *HTTPGeoClient) Lookup(ctx context.Context, host string) (*Geo, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status,message,country,isp,org,proxy,hosting,mobile,query",
		c.baseURL, url.PathEscape(host))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 429 (rate limited) and 403 (blocked) are expected from free tiers.
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geolocation lookup: status %d", resp.StatusCode)
	}

	var body geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("geolocation lookup: %s", body.Message)
	}

	return &Geo{
		IP:      body.Query,
		Country: body.Country,
		ISP:     body.ISP,
		Org:     body.Org,
		Proxy:   body.Proxy,
		Hosting: body.Hosting,
		Mobile:  body.Mobile,
	}, nil
}
