package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/model"
)

const (
	captionHeight = 18
	minImageSide  = 320
	paletteSteps  = 16
)

// Renderer writes one file per plot into a directory. It is safe for
// concurrent use.
type Renderer struct {
	dir string
	log logging.Logger

	mu    sync.Mutex
	seq   int
	files []string
}

var _ engine.Renderer = (*Renderer)(nil)

// New returns a renderer writing into dir.
func New(dir string, log logging.Logger) *Renderer {
	return &Renderer{dir: dir, log: logging.OrNoop(log)}
}

// Files lists every file written so far.
func (r *Renderer) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

// Render writes an HTML heat map for PlotInternal, a PNG image for
// PlotExternal, and both for PlotBoth.
func (r *Renderer) Render(ctx context.Context, info *engine.DistributionInfo, style engine.PlotStyle) error {
	if info == nil {
		return fmt.Errorf("%w: nothing to render", engine.ErrComputation)
	}
	base := r.nextBase(style.Title)
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	if style.Mode == model.PlotInternal || style.Mode == model.PlotBoth {
		if err := r.writeFile(base+".html", func(w io.Writer) error { return HeatMap(info, style).Render(w) }); err != nil {
			return err
		}
	}
	if style.Mode == model.PlotExternal || style.Mode == model.PlotBoth {
		if err := r.writeFile(base+".png", func(w io.Writer) error { return png.Encode(w, Image(info, style)) }); err != nil {
			return err
		}
	}
	r.log.Debug(ctx, "distribution rendered",
		logging.String("title", style.Title),
		logging.String("mode", style.Mode.String()),
	)
	return nil
}

func (r *Renderer) nextBase(title string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return filepath.Join(r.dir, fmt.Sprintf("%03d-%s", r.seq, slug(title)))
}

func (r *Renderer) writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close plot file: %w", err)
	}
	r.mu.Lock()
	r.files = append(r.files, path)
	r.mu.Unlock()
	return nil
}

// HeatMap builds the echarts heat map of a distribution.
func HeatMap(info *engine.DistributionInfo, style engine.PlotStyle) *charts.HeatMap {
	hm := charts.NewHeatMap()
	width, height := chartSize(info, style.Aspect)
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			BackgroundColor: "#ffffff",
			Width:           fmt.Sprintf("%dpx", width),
			Height:          fmt.Sprintf("%dpx", height),
			PageTitle:       style.Title,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    style.Title,
			Subtitle: summary(info),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "H [um]"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: "V [um]", Data: labels(info.VCoords)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(info.PeakIntensity),
			InRange:    &opts.VisualMapInRange{Color: palette(style.ColorMap, paletteSteps)},
		}),
	)

	data := make([]opts.HeatMapData, 0, len(info.HCoords)*len(info.VCoords))
	for j, row := range info.Histogram {
		for i, v := range row {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, j, v}})
		}
	}
	hm.SetXAxis(labels(info.HCoords)).AddSeries(info.Kind, data)
	return hm
}

// ScanChart builds a line chart of one or more beam profiles.
func ScanChart(title string, scans ...beam.Scan) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			BackgroundColor: "#ffffff",
			Width:           "100%",
			Height:          "500px",
			PageTitle:       title,
		}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "position [um]"}),
	)
	for _, s := range scans {
		data := make([]opts.LineData, len(s.Positions))
		for i, p := range s.Positions {
			data[i] = opts.LineData{Value: []interface{}{p * 1e6, s.Intensity[i]}}
		}
		line.AddSeries(s.Direction.String(), data)
	}
	return line
}

// Image paints the histogram with the colour map and a caption band.
func Image(info *engine.DistributionInfo, style engine.PlotStyle) *image.RGBA {
	nx, ny := len(info.HCoords), len(info.VCoords)
	width, height := chartSize(info, style.Aspect)
	if width < nx {
		width = nx
	}
	if height < ny {
		height = ny
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height+captionHeight))

	peak := info.PeakIntensity
	if peak <= 0 {
		peak = 1
	}
	for py := 0; py < height; py++ {
		// Row zero is the top of the image, the largest V coordinate.
		j := ny - 1 - py*ny/height
		for px := 0; px < width; px++ {
			i := px * nx / width
			img.SetRGBA(px, py, colorAt(style.ColorMap, info.Histogram[j][i]/peak))
		}
	}

	for py := height; py < height+captionHeight; py++ {
		for px := 0; px < width; px++ {
			img.SetRGBA(px, py, color.RGBA{255, 255, 255, 255})
		}
	}
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, height+captionHeight-5),
	}
	drawer.DrawString(style.Title + "  " + summary(info))
	return img
}

// chartSize scales the plot to the physical aspect for AspectTrue and to a
// square otherwise.
func chartSize(info *engine.DistributionInfo, aspect model.AspectRatio) (int, int) {
	if aspect != model.AspectTrue || len(info.HCoords) < 2 || len(info.VCoords) < 2 {
		return minImageSide, minImageSide
	}
	spanH := math.Abs(info.HCoords[len(info.HCoords)-1] - info.HCoords[0])
	spanV := math.Abs(info.VCoords[len(info.VCoords)-1] - info.VCoords[0])
	if spanH == 0 || spanV == 0 {
		return minImageSide, minImageSide
	}
	ratio := spanH / spanV
	if ratio >= 1 {
		return int(math.Round(minImageSide * math.Min(ratio, 4))), minImageSide
	}
	return minImageSide, int(math.Round(minImageSide * math.Min(1/ratio, 4)))
}

func summary(info *engine.DistributionInfo) string {
	return fmt.Sprintf("FWHM H=%.3g um V=%.3g um  centroid H=%.3g um V=%.3g um",
		info.FWHMH*1e6, info.FWHMV*1e6, info.CentroidH*1e6, info.CentroidV*1e6)
}

func labels(coords []float64) []string {
	out := make([]string, len(coords))
	for i, c := range coords {
		out[i] = fmt.Sprintf("%.3g", c*1e6)
	}
	return out
}

func slug(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "plot"
	}
	return s
}
