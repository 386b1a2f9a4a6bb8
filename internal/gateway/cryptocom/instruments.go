package cryptocom

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
)

// Instrument holds the tick/quantity precision metadata the exchange's
// REST API returns for each trading pair, ported from cdc_gateway.py's
// instruments_map.
type Instrument struct {
	Symbol           string
	PriceTickSize    float64
	QtyTickSize      float64
	QuoteDecimals    int
	QuantityDecimals int
}

type instrumentsResponse struct {
	Code   int `json:"code"`
	Result struct {
		Data []struct {
			Symbol           string `json:"symbol"`
			PriceTickSize    string `json:"price_tick_size"`
			QtyTickSize      string `json:"qty_tick_size"`
			QuoteDecimals    int    `json:"quote_decimals"`
			QuantityDecimals int    `json:"quantity_decimals"`
		} `json:"data"`
	} `json:"result"`
	Message string `json:"message"`
}

// fetchInstruments calls the exchange's public/get-instruments REST
// endpoint and returns a symbol-keyed instrument map.
func fetchInstruments(ctx context.Context, restBaseURL string) (map[string]Instrument, error) {
	url := restBaseURL + "/public/get-instruments"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptocom: build instruments request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cryptocom: fetch instruments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cryptocom: fetch instruments: HTTP %d", resp.StatusCode)
	}

	var parsed instrumentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("cryptocom: decode instruments response: %w", err)
	}
	if parsed.Code != 0 {
		return nil, fmt.Errorf("cryptocom: get-instruments failed: %s", parsed.Message)
	}

	out := make(map[string]Instrument, len(parsed.Result.Data))
	for _, d := range parsed.Result.Data {
		priceTick, err := strconv.ParseFloat(d.PriceTickSize, 64)
		if err != nil {
			return nil, fmt.Errorf("cryptocom: parse price_tick_size for %s: %w", d.Symbol, err)
		}
		qtyTick, err := strconv.ParseFloat(d.QtyTickSize, 64)
		if err != nil {
			return nil, fmt.Errorf("cryptocom: parse qty_tick_size for %s: %w", d.Symbol, err)
		}
		out[d.Symbol] = Instrument{
			Symbol:           d.Symbol,
			PriceTickSize:    priceTick,
			QtyTickSize:      qtyTick,
			QuoteDecimals:    d.QuoteDecimals,
			QuantityDecimals: d.QuantityDecimals,
		}
	}
	return out, nil
}

// roundPrice rounds price to the instrument's tick size, flooring for
// buys and ceiling for sells, matching cdc_gateway.py's create_order.
func (i Instrument) roundPrice(side string, price float64) float64 {
	if side == "SELL" {
		return math.Ceil(price/i.PriceTickSize) * i.PriceTickSize
	}
	return math.Floor(price/i.PriceTickSize) * i.PriceTickSize
}

// roundQty floors quantity to the instrument's quantity tick size.
func (i Instrument) roundQty(qty float64) float64 {
	return math.Floor(qty/i.QtyTickSize) * i.QtyTickSize
}
