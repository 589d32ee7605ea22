package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptoprice/internal/coinbase"
	"cryptoprice/internal/config"
	"cryptoprice/internal/httpx"
	"cryptoprice/internal/mcp"
	"cryptoprice/internal/metrics"
	"cryptoprice/internal/price"
	"cryptoprice/internal/rates"
)

const (
	serviceTitle       = "ZKOM MCP Server"
	serviceVersion     = "1.0.0"
	serviceDescription = "Cryptocurrency price API using Model Context Protocol"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	upstream := coinbase.NewClient(
		coinbase.WithBaseURL(cfg.Coinbase.APIURL),
		coinbase.WithHTTPClient(httpClient),
	)
	cache := rates.NewCache(upstream,
		rates.WithTTL(time.Duration(cfg.Cache.TTLSeconds)*time.Second),
		rates.WithLogger(logger),
		rates.WithMetrics(m),
	)
	resolver := price.NewResolver(cache, price.WithLogger(logger))
	dispatcher := mcp.NewDispatcher(resolver,
		mcp.WithDispatcherLogger(logger),
		mcp.WithDispatcherMetrics(m),
	)

	a := &api{
		dispatcher:      dispatcher,
		defaultCurrency: cfg.DefaultCurrency,
		logger:          logger,
	}

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr, "service", serviceTitle, "version", serviceVersion)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

type api struct {
	dispatcher      *mcp.Dispatcher
	defaultCurrency string
	logger          *slog.Logger
}

// routes assembles the HTTP surface with the shared middleware chain.
func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/", a.handleRoot)
	mux.HandleFunc("/v1/crypto/price", a.handleCryptoPrice)
	mux.HandleFunc("/v1/mcp", a.handleMCP)
	mux.HandleFunc("/mcp", a.handleMCP)
	mux.Handle("/metrics", promhttp.Handler())
	return withRequestID(withJSONHeaders(withGzip(recoverPanic(limitBody(mux)))))
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceTitle,
		"version": serviceVersion,
	})
}

func (a *api) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service":     serviceTitle,
		"version":     serviceVersion,
		"description": serviceDescription,
	})
}

// handleCryptoPrice serves the single-symbol lookup. Both forms are funneled
// through the dispatcher as crypto.price.get so validation and error mapping
// live in one place.
func (a *api) handleCryptoPrice(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handlePriceQuery(w, r)
	case http.MethodPost:
		a.handlePriceBody(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *api) handlePriceQuery(w http.ResponseWriter, r *http.Request) {
	params := map[string]any{}
	if symbol := strings.TrimSpace(r.URL.Query().Get("symbol")); symbol != "" {
		params["symbol"] = symbol
	}
	if currency := strings.TrimSpace(r.URL.Query().Get("currency")); currency != "" {
		params["currency"] = currency
	} else if a.defaultCurrency != "" {
		params["currency"] = a.defaultCurrency
	}

	req := mcp.NewRequest(mcp.ActionPriceGet.String(), params, r.Header.Get("X-Request-ID"))
	writeMessage(w, a.dispatcher.Handle(r.Context(), req))
}

// priceBody mirrors the POST body {symbol, base_currency}.
type priceBody struct {
	Symbol       string `json:"symbol"`
	BaseCurrency string `json:"base_currency"`
}

func (a *api) handlePriceBody(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var body priceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, mcp.NewErrorResponse(mcp.CodeInvalidRequest,
			"invalid JSON body", nil, mcp.NewContext(requestID)))
		return
	}

	params := map[string]any{}
	if body.Symbol != "" {
		params["symbol"] = body.Symbol
	}
	if body.BaseCurrency != "" {
		params["currency"] = body.BaseCurrency
	} else if a.defaultCurrency != "" {
		params["currency"] = a.defaultCurrency
	}

	req := mcp.NewRequest(mcp.ActionPriceGet.String(), params, requestID)
	writeMessage(w, a.dispatcher.Handle(r.Context(), req))
}

// handleMCP serves the generic envelope endpoint (/v1/mcp and its
// unversioned alias /mcp).
func (a *api) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requestID := r.Header.Get("X-Request-ID")

	b, err := io.ReadAll(r.Body)
	if err != nil {
		writeMessage(w, mcp.NewErrorResponse(mcp.CodeInvalidRequest,
			"unable to read request body", nil, mcp.NewContext(requestID)))
		return
	}

	req, err := mcp.DecodeRequest(b)
	if err != nil {
		a.logger.Error("invalid MCP request", "error", err)
		writeMessage(w, mcp.NewErrorResponse(mcp.CodeInvalidRequest,
			"Invalid MCP request: "+err.Error(), nil, mcp.NewContext(requestID)))
		return
	}

	a.logger.Info("received MCP request", "action", req.Action, "request_id", req.Context.RequestID)
	writeMessage(w, a.dispatcher.Handle(r.Context(), req))
}

// All envelope replies are HTTP 200; protocol errors live inside the
// envelope, not in the status line.
func writeMessage(w http.ResponseWriter, msg mcp.Message) {
	writeJSON(w, http.StatusOK, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		// Basic CORS for browser usage; adjust as needed.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestID echoes the client's X-Request-ID header on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses the response when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		// Prefer best speed to reduce CPU usage since payloads are JSON
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
