package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/depthmesh/internal/httputil"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// handleFramesChart renders the in-memory frame window as line charts of
// geometry counts and processing time.
func (ws *WebServer) handleFramesChart(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		httputil.NotFound(w, "no frame stats available")
		return
	}
	frames := ws.stats.Recent()
	if len(frames) == 0 {
		httputil.NotFound(w, "no frames processed yet")
		return
	}

	x := make([]string, len(frames))
	indices := make([]opts.LineData, len(frames))
	triangles := make([]opts.LineData, len(frames))
	touched := make([]opts.LineData, len(frames))
	millis := make([]opts.LineData, len(frames))
	for i, f := range frames {
		x[i] = strconv.FormatUint(f.Seq, 10)
		indices[i] = opts.LineData{Value: f.Count}
		triangles[i] = opts.LineData{Value: f.Triangles}
		touched[i] = opts.LineData{Value: f.VoxelsTouched}
		millis[i] = opts.LineData{Value: float64(f.Duration.Microseconds()) / 1000}
	}
	last := frames[len(frames)-1]

	counts := charts.NewLine()
	counts.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Mesh Output", Subtitle: fmt.Sprintf("session=%s %dx%d %s", ws.sessionID, last.Width, last.Height, last.Mode)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
	)
	counts.SetXAxis(x).
		AddSeries("indices", indices).
		AddSeries("triangles", triangles).
		AddSeries("voxel hits", touched)

	timing := charts.NewLine()
	timing.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "300px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Frame Time", Subtitle: "milliseconds"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
	)
	timing.SetXAxis(x).AddSeries("ms", millis)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(counts, timing)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleVoxelSliceChart renders one z layer of the published voxel grid as a
// coloured scatter heatmap.
// Query params:
//   - z (optional; defaults to the middle layer)
func (ws *WebServer) handleVoxelSliceChart(w http.ResponseWriter, r *http.Request) {
	if ws.voxels == nil {
		httputil.NotFound(w, "voxels disabled")
		return
	}
	dims := ws.voxels.Dims()
	if dims == [3]int{} {
		httputil.NotFound(w, "no voxel grid published yet")
		return
	}
	z := dims[2] / 2
	if s := r.URL.Query().Get("z"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 || v >= dims[2] {
			httputil.BadRequest(w, fmt.Sprintf("z must be in [0, %d)", dims[2]))
			return
		}
		z = v
	}
	slice, dims, ok := ws.voxels.SliceZ(z, nil)
	if !ok {
		httputil.NotFound(w, "voxel slice unavailable")
		return
	}
	_, updated := ws.voxels.Summary()

	data := make([]opts.ScatterData, 0, len(slice))
	maxValue := float32(0)
	for i, v := range slice {
		if v <= 0 {
			continue
		}
		if v > maxValue {
			maxValue = v
		}
		data = append(data, opts.ScatterData{Value: []interface{}{i % dims[0], i / dims[0], v}})
	}
	if maxValue == 0 {
		maxValue = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Voxel Slice", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Voxel slice z=%d", z), Subtitle: fmt.Sprintf("dims=%v occupied=%d updated=%s", dims, len(data), updated.Format(time.RFC3339))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: dims[0], Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: dims[1], Name: "Y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        maxValue,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("voxels", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
