// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// RenderFrontierChart draws the efficient frontier as a PNG with volatility on the x-axis and
// expected return on the y-axis. Unattainable points are skipped. Each highlighted allocation
// is drawn as a labelled marker.
func RenderFrontierChart(points []FrontierPoint, highlights ...*Allocation) ([]byte, error) {
	xValues := make([]float64, 0, len(points))
	yValues := make([]float64, 0, len(points))
	for _, pt := range points {
		if !pt.Attainable() {
			continue
		}
		xValues = append(xValues, pt.Volatility)
		yValues = append(yValues, pt.TargetReturn)
	}

	if len(xValues) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 attainable frontier points, got %d", ErrInvalidGridSize, len(xValues))
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name: "Efficient Frontier",
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("2563eb"),
				StrokeWidth: 2.5,
			},
			XValues: xValues,
			YValues: yValues,
		},
	}

	for _, alloc := range highlights {
		if alloc == nil {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name: alloc.Method,
			Style: chart.Style{
				DotWidth: 6,
				DotColor: drawing.ColorFromHex("dc2626"),
			},
			XValues: []float64{alloc.Performance.Volatility},
			YValues: []float64{alloc.Performance.Return},
		})
	}

	percent := func(v interface{}) string {
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.1f%%", f*100)
		}
		return ""
	}

	graph := chart.Chart{
		Title:  "Efficient Frontier",
		Width:  900,
		Height: 500,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Name:           "Volatility",
			ValueFormatter: percent,
		},
		YAxis: chart.YAxis{
			Name:           "Expected Return",
			ValueFormatter: percent,
		},
		Series: series,
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
