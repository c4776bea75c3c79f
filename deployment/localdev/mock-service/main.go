// Command mock-service emulates the instrumented service's counters and
// resource endpoints for local development of the anomaly engine. Every few
// requests it injects a response-time spike so alerts can be observed end to
// end.
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"
)

func main() {
	var hits atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/internal/counters", func(w http.ResponseWriter, _ *http.Request) {
		n := hits.Add(1)
		responseTime := 5.0 + rand.Float64()
		if n%12 == 0 {
			responseTime = 60.0 + rand.Float64()*30
		}
		writeJSON(w, map[string]any{
			"observed_at": time.Now().UTC(),
			"system_state": map[string]any{
				"active_requests":         8 + rand.Intn(5),
				"completed_requests_1min": 450 + rand.Intn(60),
				"error_rate_1min":         0.01 + rand.Float64()*0.01,
				"avg_response_time_1min":  responseTime,
			},
			"efficiency": map[string]any{
				"requests_per_second": 7.5 + rand.Float64(),
				"cache_hit_rate":      0.88 + rand.Float64()*0.05,
				"queue_depth":         2 + rand.Intn(3),
			},
		})
	})

	mux.HandleFunc("/internal/resources", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"cpu_percent":    30 + rand.Float64()*20,
			"memory_mb":      700 + rand.Float64()*200,
			"memory_percent": 35 + rand.Float64()*10,
		})
	})

	addr := ":9100"
	log.Printf("mock instrumented service listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("mock service exited: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
