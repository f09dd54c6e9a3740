package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/redis"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/scheduler"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// Component states in a healthReport.
const (
	stateOK          = "ok"
	stateDegraded    = "degraded"
	stateRunning     = "running"
	stateStopped     = "stopped"
	stateDisabled    = "disabled"
	stateUnreachable = "unreachable"
)

type healthReport struct {
	Status    string      `json:"status"`
	Store     string      `json:"store"`
	Scheduler string      `json:"scheduler"`
	Redis     string      `json:"redis"`
	Jobs      []jobStatus `json:"jobs"`
}

type jobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	RunCount  int64     `json:"run_count"`
	FailCount int64     `json:"fail_count"`
	SkipCount int64     `json:"skip_count"`
	LastError string    `json:"last_error,omitempty"`
}

// pinger is implemented by app.Backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler serves the store, scheduler and Redis state. A nil sched or
// cache means the component is turned off. Any component that is down
// answers 503.
func healthHandler(store pinger, sched *scheduler.Scheduler, cache *redis.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		rep := healthReport{
			Status:    stateOK,
			Store:     stateOK,
			Scheduler: stateDisabled,
			Redis:     stateDisabled,
			Jobs:      []jobStatus{},
		}

		if err := store.Ping(ctx); err != nil {
			rep.Store = stateUnreachable
			rep.Status = stateDegraded
		}

		if sched != nil {
			rep.Scheduler = stateRunning
			if !sched.IsRunning() {
				rep.Scheduler = stateStopped
				rep.Status = stateDegraded
			}
			for _, info := range sched.ListJobs() {
				js := jobStatus{
					Name:      info.Name,
					Schedule:  info.Schedule,
					Running:   info.Running,
					LastRun:   info.LastRun,
					NextRun:   info.NextRun,
					RunCount:  info.RunCount,
					FailCount: info.FailCount,
					SkipCount: info.SkipCount,
				}
				if info.LastResult != nil && info.LastResult.Error != nil {
					js.LastError = info.LastResult.Error.Error()
				}
				rep.Jobs = append(rep.Jobs, js)
			}
		}

		if cache != nil {
			rep.Redis = stateOK
			if err := cache.Ping(ctx); err != nil {
				rep.Redis = stateUnreachable
				rep.Status = stateDegraded
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if rep.Status != stateOK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(rep)
	}
}
