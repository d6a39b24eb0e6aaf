package chart

import (
	"bytes"
	"math"
	"sort"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
	"github.com/cnquant/stockpulse/internal/services/strategy"
)

// Indicator overlay palette, assigned in sorted-name order.
var overlayColors = []drawing.Color{
	drawing.ColorFromHex("f59e0b"), // amber-500
	drawing.ColorFromHex("8b5cf6"), // violet-500
	drawing.ColorFromHex("10b981"), // emerald-500
	drawing.ColorFromHex("ec4899"), // pink-500
}

// render draws the close price with indicator overlays and buy/sell
// markers. Returns raw PNG bytes.
func render(series *models.Series, strategyName string, result *strategy.Result) ([]byte, error) {
	dates := make([]time.Time, len(series.Data))
	closes := make([]float64, len(series.Data))
	for i, bar := range series.Data {
		t, err := common.ParseTradeDate(bar.TradeDate)
		if err != nil {
			return nil, common.WrapError(common.KindInternal, err, "bad trade date in series %s", series.TSCode)
		}
		dates[i] = t
		closes[i] = bar.Close
	}

	priceSeries := chart.TimeSeries{
		Name: series.TSCode,
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
			StrokeWidth: 2.0,
		},
		XValues: dates,
		YValues: closes,
	}

	graphSeries := []chart.Series{priceSeries}
	for i, name := range sortedNames(result.Indicators) {
		xs, ys := dropGaps(dates, result.Indicators[name])
		if len(xs) < 2 {
			continue
		}
		graphSeries = append(graphSeries, chart.TimeSeries{
			Name: name,
			Style: chart.Style{
				StrokeColor:     overlayColors[i%len(overlayColors)],
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{4.0, 2.0},
			},
			XValues: xs,
			YValues: ys,
		})
	}

	if markers := signalMarkers(dates, result.Signals); len(markers.Annotations) > 0 {
		graphSeries = append(graphSeries, markers)
	}

	graph := chart.Chart{
		Title:  series.TSCode + " · " + strategyName,
		Width:  1000,
		Height: 480,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("01-02")
				}
				return ""
			},
		},
		Series: graphSeries,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, common.WrapError(common.KindInternal, err, "chart render failed")
	}
	return buf.Bytes(), nil
}

// signalMarkers places B/S labels at each signal's bar.
func signalMarkers(dates []time.Time, signals []models.Signal) chart.AnnotationSeries {
	markers := chart.AnnotationSeries{
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("dc2626"), // red-600
		},
	}
	for _, sig := range signals {
		if sig.Index < 0 || sig.Index >= len(dates) {
			continue
		}
		label := "B"
		if sig.SignalType == models.SignalSell {
			label = "S"
		}
		markers.Annotations = append(markers.Annotations, chart.Value2{
			XValue: chart.TimeToFloat64(dates[sig.Index]),
			YValue: sig.Price,
			Label:  label,
		})
	}
	return markers
}

// dropGaps removes NaN warm-up points so go-chart never sees them.
func dropGaps(dates []time.Time, values []float64) ([]time.Time, []float64) {
	xs := make([]time.Time, 0, len(values))
	ys := make([]float64, 0, len(values))
	for i, v := range values {
		if i >= len(dates) || math.IsNaN(v) {
			continue
		}
		xs = append(xs, dates[i])
		ys = append(ys, v)
	}
	return xs, ys
}

func sortedNames(indicators map[string][]float64) []string {
	names := make([]string, 0, len(indicators))
	for name := range indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
