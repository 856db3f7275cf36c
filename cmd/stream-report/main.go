// Command stream-report summarizes a recorded frame log: per-frame
// payload statistics, an interactive chart of frame sizes over the
// session, and a histogram image for quick triage of bandwidth spikes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/pointlab/depthstream/internal/framelog"
)

var (
	dbFile    = flag.String("db", "framelog.db", "Path to the frame log database")
	sessionID = flag.String("session", "", "Session to report on (default: the one with most frames)")
	outHTML   = flag.String("out", "stream-report.html", "Output HTML chart path")
	outHist   = flag.String("hist", "", "Optional histogram PNG path")
)

func main() {
	flag.Parse()

	db, err := framelog.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open frame log: %v", err)
	}
	defer db.Close()

	id := *sessionID
	if id == "" {
		id, err = busiestSession(db)
		if err != nil {
			log.Fatalf("failed to pick a session: %v", err)
		}
	}

	frames, err := db.FrameSizes(id)
	if err != nil {
		log.Fatalf("failed to load frames: %v", err)
	}
	if len(frames) == 0 {
		log.Fatalf("session %s has no frames", id)
	}

	sizes := make([]float64, len(frames))
	for i, f := range frames {
		sizes[i] = float64(f.RGBBytes + f.DepthBytes)
	}
	printSummary(id, sizes)

	if err := writeChart(id, frames, sizes); err != nil {
		log.Fatalf("failed to write chart: %v", err)
	}
	log.Printf("wrote %s", *outHTML)

	if *outHist != "" {
		if err := writeHistogram(sizes); err != nil {
			log.Fatalf("failed to write histogram: %v", err)
		}
		log.Printf("wrote %s", *outHist)
	}
}

// busiestSession picks the session with the most recorded frames.
func busiestSession(db *framelog.DB) (string, error) {
	sessions, err := db.Sessions()
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("frame log is empty")
	}
	best := sessions[0]
	for _, s := range sessions[1:] {
		if s.Frames > best.Frames {
			best = s
		}
	}
	return best.ID, nil
}

func printSummary(id string, sizes []float64) {
	sorted := append([]float64(nil), sizes...)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	fmt.Printf("session %s: %d frames\n", id, len(sizes))
	fmt.Printf("  frame bytes: mean %.0f, stddev %.0f\n", mean, std)
	for _, q := range []float64{0.5, 0.9, 0.99} {
		fmt.Printf("  p%-4.0f %.0f\n", q*100, stat.Quantile(q, stat.Empirical, sorted, nil))
	}
}

func writeChart(id string, frames []framelog.FrameSize, sizes []float64) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Frame payload size",
			Subtitle: "session " + id,
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "bytes"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
	)

	xs := make([]string, len(sizes))
	rgb := make([]opts.LineData, len(frames))
	total := make([]opts.LineData, len(frames))
	for i, f := range frames {
		xs[i] = fmt.Sprint(i)
		rgb[i] = opts.LineData{Value: f.RGBBytes}
		total[i] = opts.LineData{Value: sizes[i]}
	}
	line.SetXAxis(xs).
		AddSeries("total", total).
		AddSeries("rgb", rgb)

	f, err := os.Create(*outHTML)
	if err != nil {
		return err
	}
	defer f.Close()
	return line.Render(f)
}

func writeHistogram(sizes []float64) error {
	p := plot.New()
	p.Title.Text = "Frame payload size distribution"
	p.X.Label.Text = "bytes"
	p.Y.Label.Text = "frames"

	values := make(plotter.Values, len(sizes))
	copy(values, sizes)
	hist, err := plotter.NewHist(values, 32)
	if err != nil {
		return err
	}
	p.Add(hist)
	return p.Save(8*vg.Inch, 5*vg.Inch, *outHist)
}
