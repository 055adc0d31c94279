// Command loadtest drives concurrent writers against one dictionary of a
// running "morphdict serve" and checks afterwards that no update was lost:
// the final line count must equal the number of words the server reported
// as added.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL          string
	Dictionary       string
	Encoding         string
	APIKey           string
	Concurrency      int
	Duration         time.Duration
	WordsPerRequest  int
	SortEveryRequest int
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	wordsAdded    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	baseURL := fs.String("url", "http://localhost:8080", "base URL of morphdict serve")
	dict := fs.String("dict", fmt.Sprintf("loadtest-%d.txt", time.Now().Unix()), "dictionary name; created if missing")
	encoding := fs.String("encoding", "windows1251", "encoding for a created dictionary")
	apiKey := fs.String("api-key", os.Getenv("MD_API_KEY"), "API key when the server requires one")
	concurrency := fs.Int("concurrency", 10, "number of concurrent writers")
	duration := fs.Duration("duration", 30*time.Second, "test duration")
	words := fs.Int("words", 5, "new words per add request")
	sortEvery := fs.Int("sort-every", 10, "every n-th request of a worker is a sort (0 never)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := Config{
		BaseURL:          *baseURL,
		Dictionary:       *dict,
		Encoding:         *encoding,
		APIKey:           *apiKey,
		Concurrency:      *concurrency,
		Duration:         *duration,
		WordsPerRequest:  *words,
		SortEveryRequest: *sortEvery,
	}

	fmt.Fprintln(out, "=== morphdict write load test ===")
	fmt.Fprintf(out, "Target:      %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "Dictionary:  %s (%s)\n", cfg.Dictionary, cfg.Encoding)
	fmt.Fprintf(out, "Concurrency: %d\n", cfg.Concurrency)
	fmt.Fprintf(out, "Duration:    %s\n", cfg.Duration)
	fmt.Fprintln(out)

	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	stats := runLoadTest(client, cfg, out)
	printReport(out, stats, cfg.Duration)

	if stats.totalRequests.Load() == 0 || stats.successCount.Load() == 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "WARNING: No write succeeded. Is the service running?")
		return 1
	}

	total, err := fetchTotal(client, cfg)
	if err != nil {
		fmt.Fprintf(out, "\nfetching final dictionary: %v\n", err)
		return 1
	}
	added := stats.wordsAdded.Load()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Consistency ===")
	fmt.Fprintf(out, "Words reported added: %d\n", added)
	fmt.Fprintf(out, "Final line count:     %d\n", total)
	if int64(total) != added {
		fmt.Fprintln(out, "MISMATCH: concurrent writes were lost or duplicated")
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

func runLoadTest(client *http.Client, cfg Config, out io.Writer) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	base := fmt.Sprintf("%s/api/v1/dictionaries/%s", cfg.BaseURL, url.PathEscape(cfg.Dictionary))
	addURL := base + "/words?create=true&encoding=" + url.QueryEscape(cfg.Encoding)
	sortURL := base + "/sort"

	var wg sync.WaitGroup
	fmt.Fprint(out, "Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			seq := 0

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				seq++

				var (
					method = http.MethodPost
					target = addURL
					body   []byte
				)
				if cfg.SortEveryRequest > 0 && seq%cfg.SortEveryRequest == 0 {
					target = sortURL
				} else {
					batch := make([]string, cfg.WordsPerRequest)
					for i := range batch {
						batch[i] = cyrillicWord(workerID, seq, i)
					}
					body, _ = json.Marshal(map[string][]string{"words": batch})
				}

				// In-flight writes are allowed to finish so that every
				// word the server applied is counted.
				start := time.Now()
				status, report, err := send(context.Background(), client, method, target, cfg.APIKey, body)
				duration := time.Since(start)
				stats.RecordRequest(duration, status, err)
				if err == nil && status < 300 {
					stats.wordsAdded.Add(int64(report.Added))
				}
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprint(out, ".")
			}
		}
	}()

	wg.Wait()
	fmt.Fprintln(out, " done!")
	fmt.Fprintln(out)
	return stats
}

type writeReport struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

func send(ctx context.Context, client *http.Client, method, target, apiKey string, body []byte) (int, writeReport, error) {
	var report writeReport
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return 0, report, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, report, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			return resp.StatusCode, report, fmt.Errorf("decoding report: %w", err)
		}
		return resp.StatusCode, report, nil
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, report, nil
}

func fetchTotal(client *http.Client, cfg Config) (int, error) {
	target := fmt.Sprintf("%s/api/v1/dictionaries/%s", cfg.BaseURL, url.PathEscape(cfg.Dictionary))
	resp, err := client.Get(target)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}
	var dict struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&dict); err != nil {
		return 0, err
	}
	return dict.Total, nil
}

// cyrillicWord spells (worker, seq, i) in base 32 with the letters а..я, so
// every generated word is unique across workers.
func cyrillicWord(worker, seq, i int) string {
	var buf []rune
	for _, n := range []int{worker, seq, i} {
		for {
			buf = append(buf, 'а'+rune(n%32))
			n /= 32
			if n == 0 {
				break
			}
		}
		buf = append(buf, 'ё')
	}
	return string(buf[:len(buf)-1])
}

func printReport(out io.Writer, stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total Requests:  %d\n", total)
	fmt.Fprintf(out, "Successful:      %d\n", success)
	fmt.Fprintf(out, "Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Fprintf(out, "Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Fprintf(out, "Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(out)
		fmt.Fprintln(out, "=== Latency ===")
		fmt.Fprintf(out, "Min:    %s\n", latencies[0])
		fmt.Fprintf(out, "Avg:    %s\n", avg)
		fmt.Fprintf(out, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(out, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(out, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(out, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
