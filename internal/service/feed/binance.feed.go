package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/shopspring/decimal"
)

const defaultBinanceBaseURL = "https://api.binance.com"

// BinanceSource polls the Binance spot ticker endpoint for one symbol.
type BinanceSource struct {
	symbol     string
	baseURL    string
	httpClient *http.Client
}

func NewBinanceSource(symbol, baseURL string) *BinanceSource {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBinanceBaseURL
	}

	return &BinanceSource{
		symbol:     strings.ToUpper(strings.TrimSpace(symbol)),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *BinanceSource) Instrument() string {
	return s.symbol
}

func (s *BinanceSource) Fetch(ctx context.Context) (entity.PriceObservation, error) {
	endpoint := s.baseURL + "/api/v3/ticker/price?symbol=" + s.symbol

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return entity.PriceObservation{}, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return entity.PriceObservation{}, fmt.Errorf("fetch ticker for %s: %w", s.symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return entity.PriceObservation{}, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return entity.PriceObservation{}, fmt.Errorf("ticker request rejected for %s: status=%d body=%s", s.symbol, resp.StatusCode, string(body))
	}

	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return entity.PriceObservation{}, fmt.Errorf("ticker parse failed for %s: %w", s.symbol, err)
	}

	if strings.TrimSpace(payload.Price) == "" {
		return entity.PriceObservation{}, fmt.Errorf("price data not available for %s", s.symbol)
	}

	price, err := decimal.NewFromString(payload.Price)
	if err != nil {
		return entity.PriceObservation{}, fmt.Errorf("invalid ticker price %q for %s: %w", payload.Price, s.symbol, err)
	}

	if !price.GreaterThan(decimal.Zero) {
		return entity.PriceObservation{}, fmt.Errorf("non-positive ticker price %s for %s", price.String(), s.symbol)
	}

	return entity.PriceObservation{
		Instrument: s.symbol,
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}, nil
}
