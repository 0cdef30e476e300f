// http-loadgen is a tiny, dependency-free HTTP load generator for exercising
// the apistatus proxy. It reuses HTTP connections (keep-alive), supports
// concurrency, and reports the response status distribution so fused
// requests (429/503) are visible at a glance.
//
// Modes:
//   - single: send N requests for a single command path and device
//   - zipf:   approximate 80/20 skew over devices without PRNG: send the hot
//     device 4/5 of the time
//
// Usage examples:
//
//	http-loadgen -base=http://127.0.0.1:8080 -mode=single -path=/api/orders -device=dev-1 -n=5000 -c=16
//	http-loadgen -base=http://127.0.0.1:8080 -mode=zipf -hot_device=dev-hot -cold_devices=50 -n=8000 -c=16
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type modeType string

const (
	modeSingle modeType = "single"
	modeZipf   modeType = "zipf"
)

func main() {
	var (
		base      = flag.String("base", "http://127.0.0.1:8080", "Base URL including scheme and host")
		path      = flag.String("path", "/api/orders", "Request path to proxy")
		modeS     = flag.String("mode", string(modeSingle), "Mode: single|zipf")
		device    = flag.String("device", "dev-1", "Device number for single mode (x-device-no header)")
		hotDevice = flag.String("hot_device", "dev-hot", "Hot device for zipf mode")
		coldN     = flag.Int("cold_devices", 50, "Number of cold devices to round-robin in zipf mode")
		N         = flag.Int("n", 5000, "Total requests to send")
		conc      = flag.Int("c", 8, "Number of concurrent workers")
		// Deterministic skew: hotEvery=5 means 4/5 go to the hot device.
		hotEvery = flag.Int("hot_every", 5, "Zipf-like skew period (minimum 2)")
		// Timeouts & transport tuning
		timeout    = flag.Duration("timeout", 20*time.Second, "Overall timeout for the loadgen run")
		connIdle   = flag.Duration("idle_timeout", 30*time.Second, "HTTP idle connection timeout")
		maxIdle    = flag.Int("max_idle", 256, "Max idle connections total")
		maxIdlePer = flag.Int("max_idle_per_host", 256, "Max idle connections per host")
	)
	flag.Parse()

	m := modeType(strings.ToLower(*modeS))
	if m != modeSingle && m != modeZipf {
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want single|zipf)\n", *modeS)
		os.Exit(2)
	}
	if *N <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}
	if m == modeZipf {
		if *coldN <= 0 {
			fmt.Fprintln(os.Stderr, "-cold_devices must be > 0 in zipf mode")
			os.Exit(2)
		}
		if *hotEvery < 2 {
			*hotEvery = 2
		}
	}

	baseURL := strings.TrimRight(*base, "/")
	p := *path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	fullURL := baseURL + p

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdlePer,
		IdleConnTimeout:     *connIdle,
	}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var errs int64
	var statuses sync.Map // status code -> *int64

	count := func(code int) {
		v, _ := statuses.LoadOrStore(code, new(int64))
		atomic.AddInt64(v.(*int64), 1)
	}

	worker := func(id, n int) {
		for i := 0; i < n; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var dev string
			if m == modeSingle {
				dev = *device
			} else {
				// 80/20-ish deterministic skew
				if ((i + id) % *hotEvery) != 0 {
					dev = *hotDevice
				} else {
					idx := ((i + id) % *coldN) + 1
					dev = fmt.Sprintf("cold-%d", idx)
				}
			}
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
			req.Header.Set("x-device-no", dev)
			resp, err := client.Do(req)
			if err != nil {
				atomic.AddInt64(&errs, 1)
				// Brief backoff on errors to avoid hot spinning
				time.Sleep(200 * time.Microsecond)
				continue
			}
			count(resp.StatusCode)
			// Drain and close body to enable connection reuse
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
	}

	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		n := per
		if w == *conc-1 {
			n += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, n)
	}
	wg.Wait()
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}

	var codes []int
	statuses.Range(func(k, _ any) bool {
		codes = append(codes, k.(int))
		return true
	})
	sort.Ints(codes)
	var dist []string
	for _, c := range codes {
		v, _ := statuses.Load(c)
		dist = append(dist, fmt.Sprintf("%d:%d", c, atomic.LoadInt64(v.(*int64))))
	}

	ops := float64(*N) / elapsed.Seconds()
	fmt.Printf("LoadGen: mode=%s N=%d c=%d go=%d Duration=%s Throughput=%.0f req/s Statuses=[%s] Errors=%d\n",
		m, *N, *conc, runtime.GOMAXPROCS(0), elapsed.Truncate(time.Millisecond), ops, strings.Join(dist, " "), atomic.LoadInt64(&errs))
}
