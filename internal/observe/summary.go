package observe

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Provider is an in-process meter provider whose data can be read back with
// [Provider.Summary]. It backs the CLI's --metrics flag.
type Provider struct {
	*sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

// NewProvider returns a Provider backed by a manual reader.
func NewProvider() *Provider {
	reader := sdkmetric.NewManualReader()
	return &Provider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader:        reader,
	}
}

// Name satisfies the lifecycle component interface.
func (p *Provider) Name() string { return "metrics" }

// Line is one summarised data point.
type Line struct {
	Name  string
	Attrs string
	Value string
}

func (l Line) String() string {
	if l.Attrs == "" {
		return fmt.Sprintf("%s = %s", l.Name, l.Value)
	}
	return fmt.Sprintf("%s{%s} = %s", l.Name, l.Attrs, l.Value)
}

// Summary collects the current data and flattens it to sorted lines.
// Counters report their sum, histograms their count and mean.
func (p *Provider) Summary(ctx context.Context) ([]Line, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	var lines []Line
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, Line{
						Name:  m.Name,
						Attrs: dp.Attributes.Encoded(attribute.DefaultEncoder()),
						Value: fmt.Sprintf("%d", dp.Value),
					})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					mean := 0.0
					if dp.Count > 0 {
						mean = dp.Sum / float64(dp.Count)
					}
					lines = append(lines, Line{
						Name:  m.Name,
						Attrs: dp.Attributes.Encoded(attribute.DefaultEncoder()),
						Value: fmt.Sprintf("count=%d mean=%.3fms", dp.Count, mean*1000),
					})
				}
			}
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Name != lines[j].Name {
			return lines[i].Name < lines[j].Name
		}
		return lines[i].Attrs < lines[j].Attrs
	})
	return lines, nil
}
