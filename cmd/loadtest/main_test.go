package main

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

// fakeShop имитирует HTTP API заказов и запоминает полученные запросы.
type fakeShop struct {
	mu           sync.Mutex
	createStatus int
	createKeys   []string
	statusBodies []updateStatusRequest
	emptyID      bool
}

func newFakeShop() *fakeShop {
	return &fakeShop{createStatus: http.StatusCreated}
}

func (f *fakeShop) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode create request: %v", err)
		}
		if len(req.Items) != 1 || req.Items[0].SKU == "" {
			t.Errorf("unexpected items: %+v", req.Items)
		}

		f.mu.Lock()
		f.createKeys = append(f.createKeys, r.Header.Get(idempotencyHeader))
		status := f.createStatus
		emptyID := f.emptyID
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusCreated {
			_, _ = io.WriteString(w, `{"error":"InsufficientStock","message":"out of stock"}`)
			return
		}
		id := "order-1"
		if emptyID {
			id = ""
		}
		_ = json.NewEncoder(w).Encode(orderResponse{ID: id, Status: "pending", Version: 1})
	})
	mux.HandleFunc("PATCH /orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var req updateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode status request: %v", err)
		}

		f.mu.Lock()
		f.statusBodies = append(f.statusBodies, req)
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(orderResponse{ID: r.PathValue("id"), Status: req.Status, Version: req.ExpectedVersion + 1})
	})
	return mux
}

func (f *fakeShop) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.createKeys)
}

func (f *fakeShop) updates() []updateStatusRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.statusBodies)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    loadMode
		wantErr string
	}{
		{name: "create", input: "create", want: modeCreate},
		{name: "create-advance", input: "create-advance", want: modeCreateAdvance},
		{name: "create-cancel", input: " create-cancel ", want: modeCreateCancel},
		{name: "unsupported", input: "bad", wantErr: "unsupported mode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMode(tc.input)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected mode: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-addr=http://127.0.0.1:8080/",
			"-mode=create-advance",
			"-total=12",
			"-concurrency=3",
			"-timeout=2s",
			"-cancel-rate=10",
			"-user=u-1",
			"-sku=SKU-X",
			"-qty=2",
			"-payment=transfer",
			"-idempotency=false",
			"-output=/tmp/out.json",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cfg.totalSet {
				t.Fatalf("expected totalSet=true")
			}
			if cfg.addr != "http://127.0.0.1:8080" {
				t.Fatalf("expected trailing slash trimmed, got %q", cfg.addr)
			}
			if cfg.mode != modeCreateAdvance {
				t.Fatalf("unexpected mode: %s", cfg.mode)
			}
			if cfg.total != 12 || cfg.concurrency != 3 || cfg.qty != 2 {
				t.Fatalf("unexpected numeric config: %+v", cfg)
			}
			if cfg.timeout != 2*time.Second {
				t.Fatalf("unexpected timeout: %s", cfg.timeout)
			}
			if cfg.idempotency {
				t.Fatalf("expected idempotency disabled")
			}
		})
	})

	t.Run("duration mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-duration=3s",
			"-concurrency=2",
			"-user=u-1",
			"-sku=SKU-X",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.duration != 3*time.Second {
				t.Fatalf("unexpected duration: %s", cfg.duration)
			}
			if cfg.totalSet {
				t.Fatalf("expected totalSet=false when -total was not provided")
			}
			if !cfg.idempotency {
				t.Fatalf("expected idempotency enabled by default")
			}
		})
	})

	t.Run("validation errors", func(t *testing.T) {
		required := []string{"-user=u-1", "-sku=SKU-X"}
		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{name: "invalid duration", args: append([]string{"-duration=bad"}, required...), wantErr: "parse duration"},
			{name: "negative duration", args: append([]string{"-duration=-1s"}, required...), wantErr: "duration must be >= 0"},
			{name: "invalid cancel rate", args: append([]string{"-cancel-rate=101"}, required...), wantErr: "cancel-rate must be between 0 and 100"},
			{name: "empty total", args: append([]string{"-duration=0s", "-total=0"}, required...), wantErr: "total must be > 0"},
			{name: "zero qty", args: append([]string{"-qty=0"}, required...), wantErr: "qty must be > 0"},
			{name: "missing user", args: []string{"-sku=SKU-X"}, wantErr: "user is required"},
			{name: "missing sku", args: []string{"-user=u-1"}, wantErr: "sku is required"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				withCLIArgs(t, tc.args, func() {
					_, err := parseConfig()
					if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
						t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
					}
				})
			})
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatalf("expected non-zero jobs for duration mode")
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 10*time.Millisecond, http.StatusCreated)
	c.record("scenario", 20*time.Millisecond, http.StatusBadRequest)
	c.record("scenario", 30*time.Millisecond, 0)
	c.record("CreateOrder", 15*time.Millisecond, http.StatusCreated)

	snap, ok := c.snapshot("scenario")
	if !ok {
		t.Fatalf("scenario snapshot missing")
	}
	if snap.Calls != 3 || snap.Success != 1 || snap.Failed != 2 {
		t.Fatalf("unexpected scenario snapshot: %+v", snap)
	}
	if snap.Codes["201"] != 1 || snap.Codes["400"] != 1 || snap.Codes[transportErrorCode] != 1 {
		t.Fatalf("unexpected codes: %+v", snap.Codes)
	}

	if _, ok := c.snapshot("UpdateStatus"); ok {
		t.Fatalf("unexpected snapshot for unused method")
	}

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 3 || r.FailedScenarios != 2 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.RPS <= 0 {
		t.Fatalf("expected positive rps, got %f", r.RPS)
	}
	if _, ok := r.Methods["CreateOrder"]; !ok {
		t.Fatalf("expected CreateOrder stats in report")
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.Min != 10 || summary.Max != 40 || summary.Avg != 25 || summary.P50 != 25 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if p := percentile(values, 95); p <= 30 || p > 40 {
		t.Fatalf("unexpected percentile: %f", p)
	}
	if got := buildLatencySummary(nil); got != (latencySummary{}) {
		t.Fatalf("expected zero summary, got %+v", got)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}

	if got := formatCodes(map[string]int64{"409": 2, "201": 5}); got != "201:5,409:2" {
		t.Fatalf("unexpected codes format: %s", got)
	}
	if !shouldCancelScenario(5, 10) || shouldCancelScenario(15, 10) || shouldCancelScenario(1, 0) {
		t.Fatalf("unexpected cancel decision")
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	sample := report{TotalScenarios: 2, SuccessScenarios: 2}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.SuccessScenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := writeJSONReport("../escape.json", sample); err == nil {
		t.Fatalf("expected error for path outside current directory")
	}
}

func TestRunScenario(t *testing.T) {
	baseCfg := config{
		timeout:       time.Second,
		concurrency:   1,
		userID:        "u-1",
		sku:           "SKU-1",
		qty:           1,
		paymentMethod: "pix",
		idempotency:   true,
	}

	t.Run("create sends idempotency key", func(t *testing.T) {
		shop := newFakeShop()
		srv := httptest.NewServer(shop.handler(t))
		defer srv.Close()

		cfg := baseCfg
		cfg.addr = srv.URL
		cfg.mode = modeCreate
		c := newCollector()

		if err := runScenario(newClient(cfg), cfg, 7, "run-1", c); err != nil {
			t.Fatalf("runScenario failed: %v", err)
		}
		if keys := shop.keys(); len(keys) != 1 || keys[0] != "lt-create-run-1-7" {
			t.Fatalf("unexpected idempotency keys: %v", keys)
		}
		if len(shop.updates()) != 0 {
			t.Fatalf("create mode must not update status")
		}
		snap, ok := c.snapshot("CreateOrder")
		if !ok || snap.Codes["201"] != 1 {
			t.Fatalf("unexpected CreateOrder stats: %+v", snap)
		}
	})

	t.Run("create-advance moves to processing", func(t *testing.T) {
		shop := newFakeShop()
		srv := httptest.NewServer(shop.handler(t))
		defer srv.Close()

		cfg := baseCfg
		cfg.addr = srv.URL
		cfg.mode = modeCreateAdvance
		cfg.idempotency = false

		if err := runScenario(newClient(cfg), cfg, 1, "run-2", newCollector()); err != nil {
			t.Fatalf("runScenario failed: %v", err)
		}
		if keys := shop.keys(); len(keys) != 1 || keys[0] != "" {
			t.Fatalf("expected no idempotency key, got %v", keys)
		}
		if updates := shop.updates(); len(updates) != 1 || updates[0].Status != "processing" || updates[0].ExpectedVersion != 1 {
			t.Fatalf("unexpected status updates: %+v", updates)
		}
	})

	t.Run("create-cancel cancels", func(t *testing.T) {
		shop := newFakeShop()
		srv := httptest.NewServer(shop.handler(t))
		defer srv.Close()

		cfg := baseCfg
		cfg.addr = srv.URL
		cfg.mode = modeCreateCancel

		if err := runScenario(newClient(cfg), cfg, 1, "run-3", newCollector()); err != nil {
			t.Fatalf("runScenario failed: %v", err)
		}
		if updates := shop.updates(); len(updates) != 1 || updates[0].Status != "cancelled" {
			t.Fatalf("unexpected status updates: %+v", updates)
		}
	})

	t.Run("non 2xx fails scenario", func(t *testing.T) {
		shop := newFakeShop()
		shop.createStatus = http.StatusBadRequest
		srv := httptest.NewServer(shop.handler(t))
		defer srv.Close()

		cfg := baseCfg
		cfg.addr = srv.URL
		cfg.mode = modeCreate
		c := newCollector()

		err := runScenario(newClient(cfg), cfg, 1, "run-4", c)
		if err == nil || !strings.Contains(err.Error(), "unexpected status 400") {
			t.Fatalf("expected status error, got %v", err)
		}
		snap, _ := c.snapshot("scenario")
		if snap.Failed != 1 || snap.Codes["400"] != 1 {
			t.Fatalf("unexpected scenario stats: %+v", snap)
		}
	})

	t.Run("empty order id", func(t *testing.T) {
		shop := newFakeShop()
		shop.emptyID = true
		srv := httptest.NewServer(shop.handler(t))
		defer srv.Close()

		cfg := baseCfg
		cfg.addr = srv.URL
		cfg.mode = modeCreate

		err := runScenario(newClient(cfg), cfg, 1, "run-5", newCollector())
		if err == nil || !strings.Contains(err.Error(), "empty order id") {
			t.Fatalf("expected empty id error, got %v", err)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		cfg := baseCfg
		cfg.addr = addr
		cfg.mode = modeCreate
		c := newCollector()

		if err := runScenario(newClient(cfg), cfg, 1, "run-6", c); err == nil {
			t.Fatalf("expected transport error")
		}
		snap, _ := c.snapshot("CreateOrder")
		if snap.Codes[transportErrorCode] != 1 {
			t.Fatalf("unexpected codes: %+v", snap.Codes)
		}
	})
}

func TestPrintReport(t *testing.T) {
	r := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Methods: map[string]methodReport{
			"scenario":    {Calls: 2, Success: 2},
			"CreateOrder": {Calls: 2, Success: 2, Codes: map[string]int64{"201": 2}},
		},
	}

	out := captureStdout(t, func() {
		printReport(r, config{mode: modeCreate, total: 2})
	})

	if !strings.Contains(out, "Load test summary") {
		t.Fatalf("expected summary header, got: %s", out)
	}
	if !strings.Contains(out, "CreateOrder") || !strings.Contains(out, "codes=201:2") {
		t.Fatalf("expected method section, got: %s", out)
	}
}

func TestMainSmoke(t *testing.T) {
	shop := newFakeShop()
	srv := httptest.NewServer(shop.handler(t))
	defer srv.Close()

	dir := t.TempDir()
	outPath := filepath.Join(dir, "main-report.json")

	withCLIArgs(t, []string{
		"-addr=" + srv.URL,
		"-mode=create",
		"-total=5",
		"-concurrency=2",
		"-timeout=2s",
		"-user=u-1",
		"-sku=SKU-1",
		"-output=" + outPath,
	}, func() {
		main()
	})

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("expected report file from main: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 5 || decoded.FailedScenarios != 0 {
		t.Fatalf("unexpected report: %+v", decoded)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}
