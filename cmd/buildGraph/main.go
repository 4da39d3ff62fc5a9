package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// BenchmarkResult mirrors the bench driver's result schema.
type BenchmarkResult struct {
	Scenario             string  `json:"scenario"`
	NumProducers         int     `json:"num_producers"`
	NumConsumers         int     `json:"num_consumers"`
	Chained              bool    `json:"chained"`
	Capacity             uint    `json:"capacity"`
	BatchSize            uint    `json:"batch_size"`
	Yield                string  `json:"yield"`
	NumMessages          int64   `json:"num_messages"`
	NumMessagesDelivered int64   `json:"num_messages_delivered"`
	NumSkipped           int64   `json:"num_skipped"`
	TestDuration         string  `json:"test_duration"`
	ActualElapsed        string  `json:"actual_elapsed"`
	Throughput           float64 `json:"throughput_msgs_sec"`
	ProducerYields       uint64  `json:"producer_yields"`
	ConsumerYields       uint64  `json:"consumer_yields"`
	Timestamp            int64   `json:"timestamp"`
	GoVersion            string  `json:"go_version"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU            int     `json:"num_cpu"`
	TrueCPU           int     `json:"true_cpu,omitempty"`
	SimulatedCPUCount int     `json:"simulated_cpu_count,omitempty"`
	CPUModel          string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz       float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH            string  `json:"go_arch"`
	TotalMemory       uint64  `json:"total_memory_bytes,omitempty"`
}

// FullReport represents a complete bench session.
type FullReport struct {
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks"`
}

// topologyStats holds "5%-avg-min", median, and "5%-avg-max" for one
// topology size.
type topologyStats struct {
	topology float64 // replaced with category index
	orig     float64 // original producers+consumers value
	min      float64 // average of bottom 5%
	median   float64
	max      float64 // average of top 5%
}

// statsPoints implements XYer and YErrorer so we can plot lines plus
// error bars.
type statsPoints []topologyStats

func (s statsPoints) Len() int                { return len(s) }
func (s statsPoints) XY(i int) (x, y float64) { return s[i].topology, s[i].median }
func (s statsPoints) YError(i int) (low, high float64) {
	low = s[i].median - s[i].min
	high = s[i].max - s[i].median
	return low, high
}

// categoryTicks implements a categorical X-axis: 0,1,2,... mapped to
// topology labels.
type categoryTicks struct {
	positions []float64
	labels    []string
}

func (ct categoryTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for i, pos := range ct.positions {
		if pos >= min && pos <= max {
			ticks = append(ticks, plot.Tick{Value: pos, Label: ct.labels[i]})
		}
	}
	return ticks
}

func main() {
	jsonFile := flag.String("jsonfile", "test-results.json", "Path to JSON file containing bench sessions")
	outputPrefix := flag.String("out", "benchmark_graph", "Output graph image filename prefix")
	flag.Parse()

	data, err := os.ReadFile(*jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading JSON file: %v\n", err)
		os.Exit(1)
	}

	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshalling JSON: %v\n", err)
		os.Exit(1)
	}

	// Group data by CPU count -> yield strategy -> topology size -> ns/msg.
	pointsByCPU := make(map[int]map[string]map[float64][]float64)

	for _, session := range sessions {
		cpus := session.SystemInfo.SimulatedCPUCount
		if cpus == 0 {
			cpus = session.SystemInfo.NumCPU
		}
		if _, ok := pointsByCPU[cpus]; !ok {
			pointsByCPU[cpus] = make(map[string]map[float64][]float64)
		}
		for _, b := range session.Benchmarks {
			x := float64(b.NumProducers + b.NumConsumers)
			dur, err := time.ParseDuration(b.ActualElapsed)
			if err != nil || b.NumMessagesDelivered == 0 {
				continue
			}
			nsPerMsg := float64(dur.Nanoseconds()) / float64(b.NumMessagesDelivered)

			yieldMap := pointsByCPU[cpus]
			if _, ok := yieldMap[b.Yield]; !ok {
				yieldMap[b.Yield] = make(map[float64][]float64)
			}
			yieldMap[b.Yield][x] = append(yieldMap[b.Yield][x], nsPerMsg)
		}
	}

	for cpus, yieldMap := range pointsByCPU {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Time per delivered value (5%%-avg-min / Median / 5%%-avg-max) vs. Topology for %d CPU(s)", cpus)
		p.X.Label.Text = "NumProducers + NumConsumers"
		p.Y.Label.Text = "Time per Msg (ns) [log scale]"
		p.Y.Scale = plot.LogScale{}

		// Dark theme.
		p.BackgroundColor = color.RGBA{R: 30, G: 30, B: 30, A: 255}
		white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
		p.Title.TextStyle.Color = white
		p.X.Label.TextStyle.Color = white
		p.Y.Label.TextStyle.Color = white
		p.X.Color = white
		p.Y.Color = white
		p.X.Tick.Label.Color = white
		p.Y.Tick.Label.Color = white
		p.Legend.Top = true
		p.Legend.Left = true
		p.Legend.TextStyle.Color = white

		p.Y.Tick.Marker = plot.TickerFunc(func(min, max float64) []plot.Tick {
			const pxHeight = 648.0
			const pxSpacing = 30.0
			nTicks := pxHeight / pxSpacing

			if min <= 0 {
				min = 1e-9
			}
			start := math.Log10(min)
			end := math.Log10(max)
			step := (end - start) / nTicks

			var ticks []plot.Tick
			for i := 0.0; i <= nTicks; i++ {
				y := math.Pow(10, start+i*step)
				ticks = append(ticks, plot.Tick{Value: y, Label: formatNs(y)})
			}
			return ticks
		})

		p.Add(plotter.NewGrid())

		// Union of topology sizes for this CPU group.
		topologySet := make(map[float64]struct{})
		for _, yieldData := range yieldMap {
			for topo := range yieldData {
				topologySet[topo] = struct{}{}
			}
		}
		var topoValues []float64
		for val := range topologySet {
			topoValues = append(topoValues, val)
		}
		sort.Float64s(topoValues)

		topoMapping := make(map[float64]float64)
		var positions []float64
		var labels []string
		for i, val := range topoValues {
			topoMapping[val] = float64(i)
			positions = append(positions, float64(i))
			labels = append(labels, strconv.FormatFloat(val, 'f', -1, 64))
		}
		p.X.Tick.Marker = categoryTicks{positions: positions, labels: labels}

		var yieldNames []string
		for name := range yieldMap {
			yieldNames = append(yieldNames, name)
		}
		sort.Strings(yieldNames)

		colors := plotutil.SoftColors
		shapes := []draw.GlyphDrawer{
			draw.CircleGlyph{},
			draw.SquareGlyph{},
			draw.TriangleGlyph{},
			draw.CrossGlyph{},
			draw.PlusGlyph{},
		}

		// Slight offset so each yield strategy is visually separated.
		offsetRange := 0.4
		offsetStep := offsetRange / float64(len(yieldNames))
		startOffset := -offsetRange/2 + offsetStep/2

		for i, name := range yieldNames {
			stats := buildStats(yieldMap[name])
			if len(stats) == 0 {
				continue
			}
			for j := range stats {
				baseX := topoMapping[stats[j].orig]
				stats[j].topology = baseX + startOffset + float64(i)*offsetStep
			}
			sort.Slice(stats, func(a, b int) bool {
				return stats[a].topology < stats[b].topology
			})
			sp := statsPoints(stats)

			line, err := plotter.NewLine(sp)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating line: %v\n", err)
				continue
			}
			line.Color = colors[i%len(colors)]

			points, err := plotter.NewScatter(sp)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating scatter: %v\n", err)
				continue
			}
			points.GlyphStyle.Radius = vg.Points(5)
			points.Color = colors[i%len(colors)]
			points.Shape = shapes[i%len(shapes)]

			yErrBars, err := plotter.NewYErrorBars(sp)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating error bars: %v\n", err)
				continue
			}
			yErrBars.Color = colors[i%len(colors)]

			p.Add(line, points, yErrBars)
			p.Legend.Add(name, line, points)
		}

		filename := fmt.Sprintf("%s_%d.png", *outputPrefix, cpus)
		if err := p.Save(12*vg.Inch, 9*vg.Inch, filename); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving plot for %d CPU(s): %v\n", cpus, err)
			continue
		}
		fmt.Printf("Graph for %d CPU(s) saved to %s\n", cpus, filename)
	}
}

// buildStats computes "average of bottom 5%", median, and "average of
// top 5%" per topology size.
func buildStats(topologyMap map[float64][]float64) []topologyStats {
	var out []topologyStats
	for x, vals := range topologyMap {
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		out = append(out, topologyStats{
			topology: x,
			orig:     x,
			min:      averageOfRange(vals, 0.0, 0.05),
			median:   median(vals),
			max:      averageOfRange(vals, 0.95, 1.0),
		})
	}
	return out
}

// averageOfRange returns the average of sortedVals in
// [startFrac, endFrac] of its length.
func averageOfRange(sortedVals []float64, startFrac, endFrac float64) float64 {
	n := len(sortedVals)
	if n == 0 {
		return 0
	}
	startIndex := int(float64(n) * startFrac)
	endIndex := int(float64(n) * endFrac)
	if startIndex < 0 {
		startIndex = 0
	}
	if endIndex > n {
		endIndex = n
	}
	if startIndex >= endIndex {
		// fallback to median if the 5% slice is too small
		return median(sortedVals)
	}
	sum := 0.0
	for i := startIndex; i < endIndex; i++ {
		sum += sortedVals[i]
	}
	return sum / float64(endIndex-startIndex)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return 0.5 * (sorted[mid-1] + sorted[mid])
}

// formatNs nicely formats a nanoseconds value in ns, µs, ms, or s.
func formatNs(ns float64) string {
	switch {
	case ns < 1e3:
		return fmt.Sprintf("%.0fns", ns)
	case ns < 1e6:
		return fmt.Sprintf("%.1fµs", ns/1e3)
	case ns < 1e9:
		return fmt.Sprintf("%.1fms", ns/1e6)
	default:
		return fmt.Sprintf("%.2fs", ns/1e9)
	}
}
