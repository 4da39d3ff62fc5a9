package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/i5heu/GoVaronT/internal/testbench"
	"github.com/i5heu/GoVaronT/pkg/config"
)

// BenchmarkResult holds results for one scenario run.
type BenchmarkResult struct {
	Scenario             string  `json:"scenario"`
	NumProducers         int     `json:"num_producers"`
	NumConsumers         int     `json:"num_consumers"`
	Chained              bool    `json:"chained"`
	Capacity             uint    `json:"capacity"`
	BatchSize            uint    `json:"batch_size"`
	Yield                string  `json:"yield"`
	NumMessages          int64   `json:"num_messages"`           // produced count
	NumMessagesDelivered int64   `json:"num_messages_delivered"` // deliveries over all consumers
	NumSkipped           int64   `json:"num_skipped"`
	TestDuration         string  `json:"test_duration"`
	ActualElapsed        string  `json:"actual_elapsed"`
	Throughput           float64 `json:"throughput_msgs_sec"` // delivered per second
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

// outputMarkdownTable loads the JSON file and prints a Markdown table
// for the last session.
func outputMarkdownTable(jsonFile string) {
	data, err := os.ReadFile(jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading JSON file %q: %v\n", jsonFile, err)
		os.Exit(1)
	}
	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshalling JSON: %v\n", err)
		os.Exit(1)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "No sessions found in JSON.")
		os.Exit(1)
	}
	last := sessions[len(sessions)-1]
	rows := append([]BenchmarkResult(nil), last.Benchmarks...)
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Throughput > rows[j].Throughput
	})
	fmt.Println("## Last Session Benchmark Summary")
	fmt.Println()
	fmt.Println("| Scenario             | Topology  | Yield    | Capacity | Batch | Throughput (msgs/sec) |")
	fmt.Println("|----------------------|-----------|----------|----------|-------|-----------------------|")
	for _, r := range rows {
		topology := fmt.Sprintf("%dp/%dc", r.NumProducers, r.NumConsumers)
		if r.Chained {
			topology += " chained"
		}
		fmt.Printf("| %-20s | %-9s | %-8s | %8d | %5d | %21.0f |\n",
			r.Scenario, topology, r.Yield, r.Capacity, r.BatchSize, r.Throughput)
	}
}

func main() {
	testIterations := flag.Int("iter", 5, "Number of iterations per scenario")
	cpuMaxFlag := flag.Int("cpu", 0, "If non-zero, test only that GOMAXPROCS value; if 0, test common CPU/vCPU values up to runtime.NumCPU()")
	jsonExport := flag.Bool("json", false, "Export results as JSON to test-results.json")
	markdownTable := flag.Bool("markdown-table", false, "Output markdown table from test-results.json and exit")
	jsonFileForMarkdown := flag.String("jsonfile", "test-results.json", "Path to JSON file for markdown table")
	progressFlag := flag.Bool("progress", false, "Display a progress bar with ETA")
	scenarioFile := flag.String("scenarios", "", "YAML scenario file; built-in matrix when empty")
	skipEvery := flag.Uint("skip-every", 0, "Producers skip roughly one in N claims (0 disables)")
	flag.Parse()

	if *markdownTable {
		outputMarkdownTable(*jsonFileForMarkdown)
		return
	}

	var scenarios []config.Scenario
	if *scenarioFile != "" {
		f, err := config.Load(*scenarioFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		scenarios = f.Scenarios
	} else {
		scenarios = config.Defaults()
	}

	trueCpuCount := runtime.NumCPU()
	var cpuSettings []int
	commonCPUs := []int{1, 2, 3, 4, 6, 8, 12, 16, 32, 48, 56, 64, 96, 128, 192, 256, 384, 512}
	if *cpuMaxFlag > 0 {
		desired := *cpuMaxFlag
		if desired > trueCpuCount {
			desired = trueCpuCount
		}
		cpuSettings = []int{desired}
	} else {
		for _, v := range commonCPUs {
			if v <= trueCpuCount {
				cpuSettings = append(cpuSettings, v)
			}
		}
	}

	totalTests := len(cpuSettings) * len(scenarios) * (*testIterations)
	var bar *progressbar.ProgressBar
	if *progressFlag {
		bar = progressbar.NewOptions(totalTests,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("bench"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetPredictTime(true),
		)
	}

	var allSessions []FullReport

	for _, cpus := range cpuSettings {
		runtime.GOMAXPROCS(cpus)
		sysInfo := gatherSystemInfo()
		sysInfo.NumCPU = cpus
		sysInfo.TrueCPU = trueCpuCount
		sysInfo.SimulatedCPUCount = cpus

		fmt.Printf("\n=============================\n")
		fmt.Printf("GOMAXPROCS = %d\n", cpus)
		fmt.Printf("=============================\n")

		var results []BenchmarkResult

		for _, s := range scenarios {
			fmt.Printf("  [Scenario %s: producers=%d, consumers=%d, yield=%s]\n",
				s.Name, s.Producers, s.Consumers, s.Yield)
			for iteration := 1; iteration <= *testIterations; iteration++ {
				runtime.GC()
				res, err := testbench.Run(s, testbench.Options{SkipEvery: uint32(*skipEvery)})
				if err != nil {
					fmt.Fprintf(os.Stderr, "scenario %s: %v\n", s.Name, err)
					os.Exit(1)
				}
				throughput := float64(res.Delivered) / res.Elapsed.Seconds()

				var prodYields, consYields uint64
				for _, st := range res.ProducerStats {
					prodYields += st.Yields
				}
				for _, st := range res.ConsumerStats {
					consYields += st.Yields
				}

				fmt.Printf("    iter %d/%d => produced=%d, delivered=%d, skipped=%d, throughput=%.0f msg/s, took=%v\n",
					iteration, *testIterations, res.Produced, res.Delivered, res.Skipped, throughput, res.Elapsed)

				results = append(results, BenchmarkResult{
					Scenario:             s.Name,
					NumProducers:         s.Producers,
					NumConsumers:         s.Consumers,
					Chained:              s.Chained,
					Capacity:             s.Capacity,
					BatchSize:            s.BatchSize,
					Yield:                s.Yield,
					NumMessages:          res.Produced,
					NumMessagesDelivered: res.Delivered,
					NumSkipped:           res.Skipped,
					TestDuration:         time.Duration(s.Duration).String(),
					ActualElapsed:        res.Elapsed.String(),
					Throughput:           throughput,
					ProducerYields:       prodYields,
					ConsumerYields:       consYields,
					Timestamp:            time.Now().Unix(),
					GoVersion:            runtime.Version(),
				})

				if bar != nil {
					bar.Add(1)
				}
			}
		}

		allSessions = append(allSessions, FullReport{
			SessionTime: time.Now().Format(time.RFC3339),
			SystemInfo:  sysInfo,
			Benchmarks:  results,
		})
	}

	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	if *jsonExport {
		const filename = "test-results.json"
		var previous []FullReport
		if _, err := os.Stat(filename); err == nil {
			data, err := os.ReadFile(filename)
			if err == nil && len(data) > 0 {
				json.Unmarshal(data, &previous)
			}
		}
		updated := append(previous, allSessions...)
		data, err := json.MarshalIndent(updated, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error marshalling JSON:", err)
			os.Exit(1)
		}
		if err = os.WriteFile(filename, data, 0644); err != nil {
			fmt.Fprintln(os.Stderr, "Error writing JSON file:", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote results to %s\n", filename)
	}
}

// gatherSystemInfo collects basic CPU and memory details.
func gatherSystemInfo() SystemInfo {
	numCPU := runtime.NumCPU()
	goArch := runtime.GOARCH

	var cpuModel string
	var cpuSpeed float64
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		cpuModel = infos[0].ModelName
		cpuSpeed = infos[0].Mhz
	}

	var totalMemory uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMemory = vm.Total
	}

	return SystemInfo{
		NumCPU:      numCPU,
		CPUModel:    cpuModel,
		CPUSpeedMHz: cpuSpeed,
		GOARCH:      goArch,
		TotalMemory: totalMemory,
	}
}
