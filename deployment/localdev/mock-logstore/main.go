// Command mock-logstore serves a minimal search-store lookalike for local
// development: it answers _search requests with synthetic request logs and
// accepts alert document writes, so monitor-engine can run end to end without
// a real cluster.
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

type searchHit struct {
	Source map[string]any `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

var (
	alertsMu sync.Mutex
	alerts   = map[string]json.RawMessage{}
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", route)

	logger := log.New(log.Writer(), "mock-logstore ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":9200",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9200")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func route(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/_search"):
		if r.Method != http.MethodPost && r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, syntheticLogs())
	case strings.Contains(r.URL.Path, "/_doc/"):
		if r.Method != http.MethodPut && r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		storeAlert(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// syntheticLogs produces a batch of recent request documents: mostly healthy
// checkout traffic with a sprinkling of slow errors so alerts actually fire.
func syntheticLogs() searchResponse {
	now := time.Now().UTC()
	var resp searchResponse
	for i := 0; i < 40; i++ {
		doc := map[string]any{
			"@timestamp": now.Add(-time.Duration(rand.Intn(120)) * time.Second).Format(time.RFC3339Nano),
			"service":    map[string]any{"name": "checkout"},
			"request": map[string]any{
				"endpoint": "/api/orders",
				"method":   "POST",
			},
			"response": map[string]any{
				"status_code": 200,
				"duration_ms": 20 + rand.Float64()*40,
			},
		}
		if i%10 == 9 {
			doc["response"] = map[string]any{
				"status_code": 500,
				"duration_ms": 600 + rand.Float64()*300,
			}
		}
		resp.Hits.Hits = append(resp.Hits.Hits, searchHit{Source: doc})
	}
	resp.Hits.Total.Value = len(resp.Hits.Hits)
	return resp
}

func storeAlert(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	alertsMu.Lock()
	_, existed := alerts[id]
	alerts[id] = body
	alertsMu.Unlock()

	status := http.StatusCreated
	result := "created"
	if existed {
		status = http.StatusOK
		result = "updated"
	}
	w.WriteHeader(status)
	writeJSON(w, map[string]any{"_id": id, "result": result})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
