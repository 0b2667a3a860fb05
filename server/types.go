package server

import (
	"time"

	"github.com/sig-0/vedollar/storage/types"
)

type RateResponse struct {
	Time   time.Time    `json:"time"`
	Source types.Source `json:"source"`

	// Fixed-point rate (scale 10000)
	Rate int64 `json:"rate"`

	// Bs per USD
	Value float64 `json:"value"`
}

type SeriesResponse struct {
	Source  types.Source    `json:"source"`
	Results []*RateResponse `json:"results"`
}

type ConvertResponse struct {
	Rate   *RateResponse `json:"rate"`
	Amount int64         `json:"amount"`
	Result int64         `json:"result"`
}

type SourcesResponse struct {
	Results []types.Source `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func newRateResponse(o *types.Observation) *RateResponse {
	return &RateResponse{
		Time:   o.Time,
		Source: o.Source,
		Rate:   o.Rate,
		Value:  o.Float(),
	}
}
