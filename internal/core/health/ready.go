package health

import (
	"encoding/json"
	"net/http"
	"sort"
)

// ReadinessReporter is satisfied by layers.Set.
type ReadinessReporter interface {
	Ready() bool
	Failures() map[string]error
}

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Readiness answers 200 once every configured layer resolved or failed.
// Failed layers are listed but do not hold readiness back.
func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status string   `json:"status"`
			Failed []string `json:"failed,omitempty"`
		}
		out := resp{Status: "not_ready"}
		ready := rr.Ready()
		if ready {
			out.Status = "ready"
			for name := range rr.Failures() {
				out.Failed = append(out.Failed, name)
			}
			sort.Strings(out.Failed)
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
