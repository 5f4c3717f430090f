// Webhook load driver: replays gateway callbacks against a running API to
// measure throughput and verify that duplicate deliveries stay idempotent.
// Events address seeded invoices by number, so run the API with
// INVOICE_LOOKUP=number.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	invoices    int
)

// Metrics
var (
	totalRequests uint64
	processed     uint64 // New payments applied
	replays       uint64 // Idempotent "already processed"
	notFound      uint64
	badRequest    uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&invoices, "invoices", 50, "Seeded invoice count to target")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		n := rand.Intn(invoices) + 1
		if workload == "hotspot" {
			// 80% of traffic hammers 10% of the invoices, so most events
			// after the first land on the idempotency guard.
			if rand.Intn(10) < 8 {
				n = rand.Intn(invoices/10+1) + 1
			}
		}

		event := map[string]string{
			"orderId":      fmt.Sprintf("INV/2026/%03d", n),
			"traceNumber":  fmt.Sprintf("BENCH-TXN-%04d", n),
			"amount":       fmt.Sprintf("%d.00", 50+n*10),
			"currencyName": "USD",
		}
		body, _ := json.Marshal(event)

		resp, err := client.Post(targetURL+"/flocash/callback", "application/json", bytes.NewReader(body))
		atomic.AddUint64(&totalRequests, 1)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		var parsed struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK && parsed.Message == "Payment already processed":
			atomic.AddUint64(&replays, 1)
		case resp.StatusCode == http.StatusOK:
			atomic.AddUint64(&processed, 1)
		case resp.StatusCode == http.StatusNotFound:
			atomic.AddUint64(&notFound, 1)
		case resp.StatusCode == http.StatusBadRequest:
			atomic.AddUint64(&badRequest, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println("--- Benchmark Results ---")
	fmt.Printf("Elapsed:            %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total Requests:     %d (%.0f req/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("Processed (new):    %d\n", atomic.LoadUint64(&processed))
	fmt.Printf("Idempotent replays: %d\n", atomic.LoadUint64(&replays))
	fmt.Printf("Not Found:          %d\n", atomic.LoadUint64(&notFound))
	fmt.Printf("Bad Request:        %d\n", atomic.LoadUint64(&badRequest))
	fmt.Printf("Other Failures:     %d\n", atomic.LoadUint64(&failOther))
}
