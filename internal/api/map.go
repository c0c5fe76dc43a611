package api

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pothole.report/internal/eventlog"
	"github.com/banshee-data/pothole.report/internal/httputil"
	"github.com/banshee-data/pothole.report/internal/units"
)

const offlinePage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Network required</title></head>
<body><h2>Network connection required</h2>
<p>The pothole map loads its chart library over the network. Connect the device to Wi-Fi and reload.</p>
<p>Raw events remain available at <a href="/api/events">/api/events</a>.</p>
</body></html>
`

// showMap renders the logged events as a longitude/latitude scatter, with
// symbol colour keyed to area.
func (s *Server) showMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.online(r.Context()) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, offlinePage)
		return
	}
	o, msg := s.parseDisplayOptions(r)
	if msg != "" {
		httputil.BadRequest(w, msg)
		return
	}
	events, _, err := s.readEvents(o)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to read event log: %v", err))
		return
	}

	var buf bytes.Buffer
	if err := s.renderMap(&buf, events, o); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) renderMap(w io.Writer, events []eventlog.Event, o displayOptions) error {
	data := make([]opts.ScatterData, 0, len(events))
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	maxArea := 0.0
	for _, e := range events {
		area := units.ConvertArea(e.AreaM2, o.units)
		data = append(data, opts.ScatterData{
			Name:  s.displayTime(e.Time, o.timezone).Format("2006-01-02 15:04:05"),
			Value: []interface{}{e.Longitude, e.Latitude, area},
		})
		minLat, maxLat = math.Min(minLat, e.Latitude), math.Max(maxLat, e.Latitude)
		minLon, maxLon = math.Min(minLon, e.Longitude), math.Max(maxLon, e.Longitude)
		maxArea = math.Max(maxArea, area)
	}
	if maxArea == 0 {
		maxArea = 1
	}

	xAxis := opts.XAxis{Name: "Longitude", NameLocation: "middle", NameGap: 25}
	yAxis := opts.YAxis{Name: "Latitude", NameLocation: "middle", NameGap: 40}
	if len(events) > 0 {
		// keep single points and straight-line drives off the chart edge
		pad := math.Max(math.Max(maxLat-minLat, maxLon-minLon)*0.05, 0.0005)
		xAxis.Min, xAxis.Max = minLon-pad, maxLon+pad
		yAxis.Min, yAxis.Max = minLat-pad, maxLat+pad
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Potholes", Width: "100%", Height: "720px", AssetsHost: s.cfg.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Logged potholes", Subtitle: fmt.Sprintf("events=%d units=%s", len(events), o.units)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(xAxis),
		charts.WithYAxisOpts(yAxis),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxArea),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#fde725", "#fd8d3c", "#e31a1c", "#800026"}},
		}),
	)
	scatter.AddSeries("potholes", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	return scatter.Render(w)
}
