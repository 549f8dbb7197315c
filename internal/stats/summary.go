// Package stats summarizes station time series.
package stats

import (
	"fmt"
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/shopspring/decimal"

	"wastewater/internal/core"
)

// relativeAccuracy bounds the quantile error of the sketch (1%).
const relativeAccuracy = 0.01

// Summary describes the distribution of a series.
type Summary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	First string  `json:"first,omitempty"` // yyyy-mm-dd
	Last  string  `json:"last,omitempty"`  // yyyy-mm-dd
}

// Summarize computes exact min, max and mean and sketched quantiles of the
// points. Points whose value is not a finite number are ignored.
func Summarize(points []core.Point) (Summary, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(relativeAccuracy)
	if err != nil {
		return Summary{}, fmt.Errorf("create sketch: %w", err)
	}

	s := Summary{Min: math.MaxFloat64, Max: -math.MaxFloat64}
	sum := 0.0
	for _, p := range points {
		d, err := decimal.NewFromString(p.Value)
		if err != nil {
			continue
		}
		v := d.InexactFloat64()
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		// values beyond the sketch's indexable range are left out
		if err := sketch.Add(v); err != nil {
			continue
		}

		s.Count++
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		if s.First == "" || p.Date.ISO() < s.First {
			s.First = p.Date.ISO()
		}
		if p.Date.ISO() > s.Last {
			s.Last = p.Date.ISO()
		}
	}

	if s.Count == 0 {
		return Summary{}, nil
	}
	s.Mean = sum / float64(s.Count)

	for _, q := range []struct {
		quantile float64
		dst      *float64
	}{{0.50, &s.P50}, {0.90, &s.P90}, {0.95, &s.P95}} {
		v, err := sketch.GetValueAtQuantile(q.quantile)
		if err != nil {
			return Summary{}, fmt.Errorf("quantile %.2f: %w", q.quantile, err)
		}
		*q.dst = v
	}
	return s, nil
}
