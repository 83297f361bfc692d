// Command railproxy fronts the two external backends railwatch talks to:
// the NS reisinformatie API (adding the subscription key server-side so it
// never reaches the client) and a local text generation endpoint used by
// the LLM recommendation provider.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appLog "railwatch/internal/log"
)

const (
	defaultNSBase     = "https://gateway.apiportal.ns.nl/reisinformatie-api/api/v2"
	defaultOllamaBase = "http://127.0.0.1:11434"
	defaultModel      = "llama3.2"
)

type proxy struct {
	nsBase     string
	nsKey      string
	ollamaBase string
	model      string
	client     *http.Client
}

func main() {
	listen := flag.String("listen", "127.0.0.1:3001", "HTTP listen address")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	appLog.Setup(*debug)

	p := &proxy{
		nsBase:     envOr("NS_API_BASE", defaultNSBase),
		nsKey:      os.Getenv("NS_API_KEY"),
		ollamaBase: envOr("OLLAMA_BASE", defaultOllamaBase),
		model:      envOr("OLLAMA_MODEL", defaultModel),
		client:     &http.Client{Timeout: 90 * time.Second},
	}
	if p.nsKey == "" {
		appLog.Info("NS_API_KEY not set, /ns routes will fail upstream")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ns/reisinformatie/{endpoint}", p.handleNS)
	r.Post("/reason", p.handleReason)

	appLog.Info("railproxy listening", "addr", *listen, "ns_base", p.nsBase, "model", p.model)
	srv := &http.Server{Addr: *listen, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		appLog.Error("railproxy exited with error", err)
		os.Exit(1)
	}
}

// handleNS forwards one reisinformatie call upstream, attaching the
// subscription key and passing the query string through untouched.
func (p *proxy) handleNS(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")
	if strings.ContainsAny(endpoint, "/\\") {
		writeError(w, http.StatusBadRequest, "invalid endpoint")
		return
	}

	url := fmt.Sprintf("%s/%s", p.nsBase, endpoint)
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "build upstream request failed")
		return
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.nsKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		appLog.Error("ns upstream request failed", err, "endpoint", endpoint)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	defer resp.Body.Close()

	appLog.Debug("ns upstream response", "endpoint", endpoint, "status", resp.StatusCode)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		appLog.Error("ns response copy failed", err)
	}
}

type reasonRequest struct {
	Prompt string `json:"prompt"`
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// handleReason runs one non-streaming generation and returns the raw text.
// Validation of the text is the caller's problem; the proxy stays dumb.
func (p *proxy) handleReason(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	body, err := json.Marshal(ollamaRequest{Model: p.model, Prompt: req.Prompt, Stream: false})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode upstream request failed")
		return
	}

	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.ollamaBase+"/api/generate", bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "build upstream request failed")
		return
	}
	upstream.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(upstream)
	if err != nil {
		appLog.Error("generation upstream request failed", err)
		writeError(w, http.StatusBadGateway, "generation backend unavailable")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		appLog.Error("generation backend error", fmt.Errorf("status %d: %s", resp.StatusCode, snippet))
		writeError(w, http.StatusBadGateway, "generation backend error")
		return
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		writeError(w, http.StatusBadGateway, "malformed generation response")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": out.Response})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("response encode failed", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
