package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/awaistahir/spotswitch/internal/engine"
)

// PorssisahkoClient fetches Finnish spot prices from porssisahko.net. Prices
// already include VAT.
type PorssisahkoClient struct {
	httpClient *http.Client
	url        string
}

func NewPorssisahkoClient(url string, timeout time.Duration) *PorssisahkoClient {
	return &PorssisahkoClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

type porssisahkoResponse struct {
	Prices []struct {
		StartDate time.Time `json:"startDate"`
		Price     float64   `json:"price"` // c/kWh
	} `json:"prices"`
}

func (c *PorssisahkoClient) Name() string {
	return "porssisahko"
}

// PricesForDay picks [start, end) out of the latest published prices
func (c *PorssisahkoClient) PricesForDay(ctx context.Context, start, end time.Time) ([]engine.Price, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting spot prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var pr porssisahkoResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decoding spot prices: %w", err)
	}

	// Newest first in the response
	prices := make([]engine.Price, 0, len(pr.Prices))
	for _, p := range pr.Prices {
		prices = append(prices, engine.Price{Validity: p.StartDate, Price: p.Price})
	}
	return within(prices, start, end), nil
}
