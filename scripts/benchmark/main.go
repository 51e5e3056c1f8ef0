package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/use-agent/mediagrab/models"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "mediagrab API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per URL for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Test pages covering different media densities.
var testURLs = []struct {
	Label string
	URL   string
}{
	{"Static", "https://example.com"},
	{"Blog", "https://go.dev/blog/go1.21"},
	{"Gallery", "https://commons.wikimedia.org/wiki/Main_Page"},
	{"News", "https://www.bbc.com/news"},
	{"Complex", "https://github.com/go-rod/rod"},
}

type runResult struct {
	Run       int    `json:"run"`
	LatencyMs int64  `json:"latency_ms"`
	ServerMs  int64  `json:"server_ms"`
	Images    int    `json:"images"`
	Videos    int    `json:"videos"`
	Audio     int    `json:"audio"`
	BodyBytes int    `json:"body_bytes"`
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error,omitempty"`
}

type urlAverages struct {
	LatencyMs float64 `json:"latency_ms"`
	ServerMs  float64 `json:"server_ms"`
	Media     float64 `json:"media"`
}

type urlResult struct {
	URL      string       `json:"url"`
	Label    string       `json:"label"`
	Runs     []runResult  `json:"runs"`
	Averages *urlAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== mediagrab extraction benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	client := &http.Client{Timeout: 60 * time.Second}
	for _, t := range testURLs {
		fmt.Printf("Benchmarking [%s] %s ...\n", t.Label, t.URL)
		ur := urlResult{URL: t.URL, Label: t.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkURL(client, t.URL, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d media\n", rr.LatencyMs, rr.Images+rr.Videos+rr.Audio)
			} else {
				fmt.Printf("FAILED: [%s] %s\n", rr.ErrorCode, rr.ErrorMsg)
			}
			ur.Runs = append(ur.Runs, rr)
		}

		ur.Averages = computeAverages(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkURL(client *http.Client, url string, run int) runResult {
	rr := runResult{Run: run}

	body, _ := json.Marshal(models.ExtractRequest{URL: url})
	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/extract", bytes.NewReader(body))
	if err != nil {
		rr.ErrorMsg = err.Error()
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.ErrorMsg = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		rr.ErrorMsg = fmt.Sprintf("read body: %v", err)
		return rr
	}
	rr.LatencyMs = time.Since(start).Milliseconds()
	rr.BodyBytes = buf.Len()

	if resp.StatusCode != http.StatusOK {
		var er models.ErrorResponse
		json.Unmarshal(buf.Bytes(), &er)
		rr.ErrorCode, rr.ErrorMsg = er.Code, er.Error
		return rr
	}

	var er models.ExtractResponse
	if err := json.Unmarshal(buf.Bytes(), &er); err != nil {
		rr.ErrorMsg = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	rr.Success = er.Success
	rr.ServerMs = er.Timing.TotalMs
	for _, m := range er.Media {
		switch m.Type {
		case models.MediaImage:
			rr.Images++
		case models.MediaVideo:
			rr.Videos++
		case models.MediaAudio:
			rr.Audio++
		}
	}
	return rr
}

func computeAverages(runs []runResult) *urlAverages {
	var n float64
	var avg urlAverages
	for _, r := range runs {
		if !r.Success {
			continue
		}
		n++
		avg.LatencyMs += float64(r.LatencyMs)
		avg.ServerMs += float64(r.ServerMs)
		avg.Media += float64(r.Images + r.Videos + r.Audio)
	}
	if n == 0 {
		return nil
	}
	avg.LatencyMs /= n
	avg.ServerMs /= n
	avg.Media /= n
	return &avg
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tAvg Latency\tServer\tMedia\tResponse\n")
	fmt.Fprintf(w, "───\t───────────\t──────\t─────\t────────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\n", truncateURL(r.URL, 40))
			continue
		}
		last := r.Runs[len(r.Runs)-1]
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%.0f\t%s\n",
			truncateURL(r.URL, 40),
			int64(r.Averages.LatencyMs),
			int64(r.Averages.ServerMs),
			r.Averages.Media,
			humanize.Bytes(uint64(last.BodyBytes)),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
