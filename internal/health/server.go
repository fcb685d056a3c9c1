// Package health reports whether the bridge can reach its store and chains.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe returns nil when a dependency is reachable.
type Probe func(ctx context.Context) error

// Checker names the probes /healthz runs. Nil probes are skipped.
type Checker struct {
	DBPing    Probe
	RPCPing   Probe
	CachePing Probe
}

// Report is the /healthz body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Failed []string          `json:"failed,omitempty"`
}

const probeTimeout = 3 * time.Second

func (c Checker) probes() map[string]Probe {
	out := map[string]Probe{}
	for name, p := range map[string]Probe{"db": c.DBPing, "rpc": c.RPCPing, "cache": c.CachePing} {
		if p != nil {
			out[name] = p
		}
	}
	return out
}

// Run executes every probe concurrently.
func (c Checker) Run(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	probes := c.probes()
	results := make(map[string]error, len(probes))
	type result struct {
		name string
		err  error
	}
	ch := make(chan result, len(probes))
	var g errgroup.Group
	for name, p := range probes {
		name, p := name, p
		g.Go(func() error {
			ch <- result{name: name, err: p(ctx)}
			return nil
		})
	}
	_ = g.Wait()
	close(ch)
	for r := range ch {
		results[r.name] = r.err
	}

	rep := Report{Status: "ok", Checks: make(map[string]string, len(results))}
	for name, err := range results {
		if err != nil {
			rep.Checks[name] = "fail"
			rep.Failed = append(rep.Failed, name)
			continue
		}
		rep.Checks[name] = "ok"
	}
	if len(rep.Failed) > 0 {
		rep.Status = "degraded"
		sort.Strings(rep.Failed)
	}
	return rep
}

// Handler serves the report; any failed probe yields 503.
func Handler(checker Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rep := checker.Run(r.Context())
		code := http.StatusOK
		if rep.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(rep)
	})
}
