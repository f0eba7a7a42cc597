package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/shopspring/decimal"
)

// EleringClient fetches Nord Pool day-ahead prices from the Elering dashboard API
type EleringClient struct {
	httpClient *http.Client
	baseURL    string
	area       string
	vat        decimal.Decimal
}

// NewEleringClient creates a client for the given area (ee, fi, lt, lv).
// vatPercent is added to positive prices.
func NewEleringClient(baseURL, area string, vatPercent float64, timeout time.Duration) *EleringClient {
	return &EleringClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		area:       area,
		vat:        decimal.NewFromInt(1).Add(decimal.NewFromFloat(vatPercent).Div(decimal.NewFromInt(100))),
	}
}

type eleringResponse struct {
	Success bool `json:"success"`
	// Keys: ee, fi, lt, lv
	Data map[string][]eleringPrice `json:"data"`
}

type eleringPrice struct {
	Timestamp int64   `json:"timestamp"` // unix seconds
	Price     float64 `json:"price"`     // €/MWh
}

func (c *EleringClient) Name() string {
	return "elering"
}

// PricesForDay fetches prices for [start, end) in c/kWh including VAT
func (c *EleringClient) PricesForDay(ctx context.Context, start, end time.Time) ([]engine.Price, error) {
	params := url.Values{}
	params.Add("start", start.UTC().Format(time.RFC3339))
	params.Add("end", end.Add(-time.Second).UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
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

	var er eleringResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decoding spot prices: %w", err)
	}
	if !er.Success {
		return nil, ErrSourceFailed
	}

	prices := make([]engine.Price, 0, len(er.Data[c.area]))
	for _, p := range er.Data[c.area] {
		prices = append(prices, engine.Price{
			Validity: time.Unix(p.Timestamp, 0),
			Price:    c.centsPerKWh(p.Price),
		})
	}
	return within(prices, start, end), nil
}

// centsPerKWh converts €/MWh to c/kWh. Negative prices carry no VAT.
func (c *EleringClient) centsPerKWh(eurPerMWh float64) float64 {
	cents := decimal.NewFromFloat(eurPerMWh).Div(decimal.NewFromInt(10))
	if cents.IsPositive() {
		cents = RoundPrice(cents.Mul(c.vat))
	}
	f, _ := cents.Float64()
	return f
}

// RoundPrice rounds a price to three decimals
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}
