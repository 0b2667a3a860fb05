// Package chart renders the stored rate series as a PNG plot
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"

	"github.com/sig-0/vedollar/storage/types"
)

const (
	width  = 1280
	height = 720

	// DefaultMaxPoints bounds the points plotted per series
	DefaultMaxPoints = 2000
)

var errNotEnoughData = errors.New("not enough data to plot")

// Series is a single named rate series, oldest first
type Series struct {
	Source       types.Source
	Observations []*types.Observation
}

// Render renders the series (in Bs/$) as a PNG into w.
// Series with fewer than 2 observations are left out
func Render(w io.Writer, series []Series, maxPoints int) error {
	plotted := make([]gochart.Series, 0, len(series))

	for _, s := range series {
		if len(s.Observations) < 2 {
			continue
		}

		observations := downsample(s.Observations, maxPoints)

		ts := gochart.TimeSeries{
			Name:    s.Source.String(),
			XValues: make([]time.Time, len(observations)),
			YValues: make([]float64, len(observations)),
		}

		for i, o := range observations {
			ts.XValues[i] = o.Time
			ts.YValues[i] = o.Float()
		}

		plotted = append(plotted, ts)
	}

	if len(plotted) == 0 {
		return errNotEnoughData
	}

	rateFormatter := func(v interface{}) string {
		return gochart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	graph := gochart.Chart{
		Width:  width,
		Height: height,
		XAxis: gochart.XAxis{
			Name:           "Fecha",
			ValueFormatter: gochart.TimeValueFormatter,
		},
		YAxis: gochart.YAxis{
			Name:           "Valor Bs/$ (VED/USD)",
			ValueFormatter: rateFormatter,
		},
		Series: plotted,
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	if err := graph.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("unable to render chart: %w", err)
	}

	return nil
}

// downsample evenly picks at most limit observations, keeping both ends
func downsample(observations []*types.Observation, limit int) []*types.Observation {
	if limit <= 1 || len(observations) <= limit {
		return observations
	}

	var (
		result = make([]*types.Observation, 0, limit)
		step   = float64(len(observations)-1) / float64(limit-1)
	)

	for i := range limit {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(observations) {
			idx = len(observations) - 1
		}

		result = append(result, observations[idx])
	}

	return result
}
