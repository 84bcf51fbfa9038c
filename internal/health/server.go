package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bilal/devstats/pkg/stats"
)

// OutcomeSource exposes the most recent submission outcome.
type OutcomeSource interface {
	LastOutcome() (stats.Outcome, bool)
}

type Server struct {
	addr     string
	running  int32
	outcomes OutcomeSource
	srv      *http.Server
}

type lastSubmission struct {
	CorrelationID string    `json:"correlation_id"`
	At            time.Time `json:"at"`
	Protocol      string    `json:"protocol"`
	Decision      string    `json:"decision"`
	StatusCode    int       `json:"status_code,omitempty"`
	BatchID       string    `json:"batch_id,omitempty"`
	Error         string    `json:"error,omitempty"`
}

type healthResponse struct {
	Running        bool            `json:"running"`
	LastSubmission *lastSubmission `json:"last_submission,omitempty"`
}

// New serves /health and /metrics on 127.0.0.1:port.
func New(port string, outcomes OutcomeSource) *Server {
	s := &Server{addr: "127.0.0.1:" + port, outcomes: outcomes}
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) SetRunning(ok bool) {
	if ok {
		atomic.StoreInt32(&s.running, 1)
	} else {
		atomic.StoreInt32(&s.running, 0)
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve blocks until Shutdown is called.
func (s *Server) Serve() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Running: atomic.LoadInt32(&s.running) == 1}
	if s.outcomes != nil {
		if out, ok := s.outcomes.LastOutcome(); ok {
			ls := &lastSubmission{
				CorrelationID: out.CorrelationID,
				At:            out.At,
				Protocol:      out.Protocol.String(),
				Decision:      string(out.Decision),
				StatusCode:    out.StatusCode,
				BatchID:       out.BatchID,
			}
			if out.Err != nil {
				ls.Error = out.Err.Error()
			}
			resp.LastSubmission = ls
		}
	}

	status := http.StatusOK
	if !resp.Running {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
