package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gate decisions and transport outcome labels.
const (
	DecisionAdmitted   = "admitted"
	DecisionGated      = "gated"
	DecisionInProgress = "in_progress"
	DecisionError      = "error"

	ResultSuccess     = "success"
	ResultFailure     = "failure"
	ResultEncodeError = "encode_error"
	ResultCommitError = "commit_error"
)

var (
	SubmitCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devstats_submit_calls_total", Help: "Submit calls by gate decision.",
	}, []string{"decision"})

	SubmissionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devstats_submission_results_total", Help: "Admitted submissions by result.",
	}, []string{"protocol", "result"})

	SubmissionsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devstats_submissions_inflight", Help: "Submissions currently waiting on the collector.",
	})

	LastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devstats_last_success_timestamp_seconds", Help: "Unix time of the last accepted submission.",
	})
)
