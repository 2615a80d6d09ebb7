// internal/daemon/http.go
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/colebrumley/supportanon/internal/mapping"
)

// maxFilterBody bounds the text accepted by POST /api/filter.
const maxFilterBody = 4 << 20

func (d *Daemon) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", rateLimitHandler(60, d.handleHealth))
	mux.HandleFunc("/api/mappings", rateLimitHandler(30, d.handleAPIMappings))
	mux.HandleFunc("/api/history", rateLimitHandler(30, d.handleAPIHistory))
	mux.HandleFunc("/api/refresh", rateLimitHandler(10, d.handleAPIRefresh))
	mux.HandleFunc("/api/filter", rateLimitHandler(60, d.handleAPIFilter))
	mux.HandleFunc("/api/logs", rateLimitHandler(30, d.handleAPILogs))
	return mux
}

// startHTTPServer serves the status API until ctx is cancelled.
func (d *Daemon) startHTTPServer(ctx context.Context, addr string) {
	d.httpServer = &http.Server{Addr: addr, Handler: d.newMux(), ReadHeaderTimeout: 10 * time.Second}

	d.logger.Info("starting HTTP server", "address", addr)

	go func() {
		if err := d.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.httpServer.Shutdown(shutdownCtx)
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d.mu.RLock()
	cfg := d.config
	lastEvents := make(map[string]string, len(d.lastEvent))
	for name, at := range d.lastEvent {
		lastEvents[name] = humanize.Time(at)
	}
	d.mu.RUnlock()

	resp := map[string]any{
		"status":                "ok",
		"uptime":                time.Since(d.startTime).Truncate(time.Second).String(),
		"mappings":              d.svc.Store().Len(),
		"anonymization_enabled": d.svc.Chain().Enabled(),
		"storage_backend":       cfg.Storage.Backend,
		"last_events":           lastEvents,
	}
	writeJSON(w, resp)
}

// mappingCounts summarizes the mappings. The mappings themselves hold the
// originals and are not served.
type mappingCounts struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
}

func (d *Daemon) handleAPIMappings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts := mappingCounts{ByCategory: make(map[string]int)}
	category := mapping.Category(r.URL.Query().Get("category"))
	for _, m := range d.svc.Mappings(category) {
		counts.Total++
		counts.ByCategory[string(m.Category)]++
	}
	writeJSON(w, counts)
}

func (d *Daemon) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	records, err := d.svc.History(r.URL.Query().Get("trigger"), r.URL.Query().Get("state"), limit)
	if err != nil {
		http.Error(w, "querying history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		writeJSON(w, []any{})
		return
	}
	writeJSON(w, records)
}

func (d *Daemon) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]bool{"queued": d.Refresh()})
}

// handleAPIFilter anonymizes the request body and returns it as text.
func (d *Daemon) handleAPIFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFilterBody))
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	out, err := d.svc.SafeFilter(string(body))
	if err != nil {
		d.logger.Error("filter failed", "error", err)
		http.Error(w, "could not filter content", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, out)
}

type logBackup struct {
	Path     string `json:"path"`
	Size     string `json:"size"`
	Modified string `json:"modified"`
}

// handleAPILogs lists the rotated log archives. Stdout logging has none.
func (d *Daemon) handleAPILogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	out := []logBackup{}
	if d.logWriter != nil {
		files, err := d.logWriter.BackupFiles()
		if err != nil {
			http.Error(w, "listing log backups: "+err.Error(), http.StatusInternalServerError)
			return
		}
		for _, f := range files {
			out = append(out, logBackup{
				Path:     f.Path,
				Size:     humanize.IBytes(uint64(f.Size)),
				Modified: humanize.Time(f.ModTime),
			})
		}
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	json.NewEncoder(w).Encode(v)
}

// rateLimitHandler wraps an HTTP handler with a simple token-bucket rate limiter.
func rateLimitHandler(requestsPerMinute int, handler http.HandlerFunc) http.HandlerFunc {
	var mu sync.Mutex
	tokens := requestsPerMinute
	lastRefill := time.Now()

	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		now := time.Now()
		elapsed := now.Sub(lastRefill)
		refill := int(elapsed.Minutes() * float64(requestsPerMinute))
		if refill > 0 {
			tokens += refill
			if tokens > requestsPerMinute {
				tokens = requestsPerMinute
			}
			lastRefill = now
		}

		if tokens <= 0 {
			mu.Unlock()
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		tokens--
		mu.Unlock()

		handler(w, r)
	}
}
