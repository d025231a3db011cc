// Package main provides a standalone CLI tool for producing load against the
// mail queue API. It enqueues templated emails, optionally drains the queue,
// and can mint API keys for the server configuration.
//
// Usage:
//
//	test-client --to ada@example.com --template welcome --name Ada
//	test-client --to ada@example.com --count 20 --rate 5 --priority low --process
//	test-client --keygen
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sungwon/mailqueue/internal/auth"
)

type config struct {
	url      string
	apiKey   string
	to       stringSlice
	name     string
	template string
	data     string
	priority string
	count    int
	rate     float64
	process  bool
	keygen   bool
}

// stringSlice implements flag.Value for repeatable --to flags.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	cfg := parseFlags()

	if cfg.keygen {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	if len(cfg.to) == 0 {
		fmt.Fprintln(os.Stderr, "error: at least one --to is required")
		flag.Usage()
		os.Exit(2)
	}

	vars := map[string]any{}
	if cfg.data != "" {
		if err := json.Unmarshal([]byte(cfg.data), &vars); err != nil {
			fmt.Fprintf(os.Stderr, "error: --data is not a JSON object: %v\n", err)
			os.Exit(2)
		}
	}

	client := &apiClient{base: strings.TrimRight(cfg.url, "/"), key: cfg.apiKey, http: &http.Client{Timeout: 10 * time.Second}}

	fmt.Printf("Mail Queue Test Client\n")
	fmt.Printf("  API:      %s\n", client.base)
	fmt.Printf("  Template: %s\n", cfg.template)
	fmt.Printf("  To:       %s\n", strings.Join(cfg.to, ", "))
	fmt.Printf("  Count:    %d\n", cfg.count)
	if cfg.count > 1 {
		fmt.Printf("  Rate:     %.1f emails/sec\n", cfg.rate)
	}
	fmt.Println()

	var successCount, failCount int

	interval := time.Duration(0)
	if cfg.count > 1 && cfg.rate > 0 {
		interval = time.Duration(float64(time.Second) / cfg.rate)
	}

	for i := 0; i < cfg.count; i++ {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}
		seq := i + 1
		for _, to := range cfg.to {
			req := map[string]any{
				"recipient_email": to,
				"recipient_name":  cfg.name,
				"template_type":   cfg.template,
				"template_data":   withUser(vars, cfg.name),
				"priority":        cfg.priority,
				"metadata":        map[string]any{"source": "test-client", "seq": seq},
			}

			start := time.Now()
			var out map[string]any
			err := client.do(http.MethodPost, "/api/v1/emails", req, &out)
			if err != nil {
				failCount++
				fmt.Printf("  [%d/%d] %s FAIL (%s): %v\n", seq, cfg.count, to, time.Since(start), err)
				continue
			}
			successCount++
			fmt.Printf("  [%d/%d] %s OK   (%s) id=%v\n", seq, cfg.count, to, time.Since(start), out["id"])
		}
	}

	fmt.Println()
	fmt.Printf("Enqueued: %d ok, %d failed\n", successCount, failCount)

	if cfg.process {
		var res map[string]any
		if err := client.do(http.MethodPost, "/api/v1/queue/process", nil, &res); err != nil {
			fmt.Fprintf(os.Stderr, "drain failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Drain: %v\n", res)
	}

	var stats map[string]any
	if err := client.do(http.MethodGet, "/api/v1/queue/stats", nil, &stats); err == nil {
		fmt.Printf("Queue: %v\n", stats)
	}

	if failCount > 0 {
		os.Exit(1)
	}
}

func withUser(vars map[string]any, name string) map[string]any {
	out := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}
	if _, ok := out["user"]; !ok && name != "" {
		out["user"] = map[string]any{"name": name}
	}
	return out
}

type apiClient struct {
	base string
	key  string
	http *http.Client
}

func (c *apiClient) do(method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func parseFlags() config {
	var cfg config

	flag.StringVar(&cfg.url, "url", envOr("MAILQUEUE_API_URL", "http://localhost:8080"), "mail queue API base URL")
	flag.StringVar(&cfg.apiKey, "api-key", os.Getenv("MAILQUEUE_API_API_KEY"), "API key (Bearer token)")
	flag.Var(&cfg.to, "to", "recipient address (repeatable)")
	flag.StringVar(&cfg.name, "name", "", "recipient name")
	flag.StringVar(&cfg.template, "template", "welcome", "template type")
	flag.StringVar(&cfg.data, "data", "", "template variables as a JSON object")
	flag.StringVar(&cfg.priority, "priority", "normal", "priority: urgent, high, normal, low")
	flag.IntVar(&cfg.count, "count", 1, "number of emails per recipient")
	flag.Float64Var(&cfg.rate, "rate", 1.0, "emails per second when count > 1")
	flag.BoolVar(&cfg.process, "process", false, "trigger a drain after enqueueing")
	flag.BoolVar(&cfg.keygen, "keygen", false, "print a new API key and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: test-client [flags]\n\nEnqueue test emails through the mail queue API.\n\nFlags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if cfg.count < 1 {
		cfg.count = 1
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
