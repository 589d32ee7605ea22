// Command mcpclient sends MCP envelope requests to a running crypto price
// server and pretty-prints the reply.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"cryptoprice/internal/config"
	"cryptoprice/internal/httpx"
	"cryptoprice/internal/mcp"
)

func main() {
	var serverURL string
	var symbolsCSV string
	var currency string
	var compare bool
	var timeout int

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	flag.StringVar(&serverURL, "server", getenv("MCP_SERVER_URL", "http://localhost:8000/v1/mcp"), "MCP endpoint URL")
	flag.StringVar(&symbolsCSV, "symbols", strings.Join(cfg.WatchSymbols, ","), "comma-separated symbols")
	flag.StringVar(&currency, "currency", cfg.DefaultCurrency, "base currency for prices")
	flag.BoolVar(&compare, "compare", false, "compare prices against each other instead of listing them")
	flag.IntVar(&timeout, "timeout", cfg.Server.RequestTimeoutSec, "request timeout seconds")
	flag.Parse()

	symbols := splitCSV(symbolsCSV)
	if len(symbols) == 0 {
		log.Fatal("no symbols given")
	}

	action := mcp.ActionPricesGet
	params := map[string]any{"symbols": symbols, "currency": currency}
	switch {
	case compare:
		action = mcp.ActionPricesCompare
	case len(symbols) == 1:
		action = mcp.ActionPriceGet
		params = map[string]any{"symbol": symbols[0], "currency": currency}
	}

	req := mcp.NewRequest(action.String(), params, "")
	body, err := json.Marshal(req)
	if err != nil {
		log.Fatalf("encode request: %v", err)
	}

	client := httpx.New(time.Duration(timeout) * time.Second)
	httpReq, err := http.NewRequest(http.MethodPost, serverURL, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", req.Context.RequestID)

	resp, err := client.Do(httpReq)
	if err != nil {
		log.Fatalf("send request: %v", err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		log.Fatalf("read reply: %v", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, reply, "", "  "); err != nil {
		fmt.Println(string(reply))
		return
	}
	fmt.Println(pretty.String())
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
