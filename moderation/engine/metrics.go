package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var itemsSubmittedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_items_submitted",
	Help: "Number of items accepted into the moderation pipeline",
}, []string{"kind"})

var scoresAppliedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_scores_applied",
	Help: "Number of automated scoring results applied",
}, []string{"channel", "recommendation"})

var scoringFailureCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_scoring_failures",
	Help: "Number of scorer faults resolved by the fail-open rule",
})

var scoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "moderation_scoring_duration_sec",
	Help: "Duration of automated scoring, including state application",
})

var transitionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_transitions",
	Help: "Number of item status transitions",
}, []string{"status", "source"})

var discardedOpCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_discarded_ops",
	Help: "Number of operations discarded because the item was already terminal",
}, []string{"op"})

var votesCastCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_votes_cast",
	Help: "Number of community votes accepted",
}, []string{"direction"})

var reportsFiledCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_reports_filed",
	Help: "Number of abuse reports accepted against chat messages",
})

var auditWriteErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_audit_write_errors",
	Help: "Number of failed audit log writes (state transitions proceed regardless)",
})

var escalationSentCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_escalations_sent",
	Help: "Number of escalation events delivered to the notifier",
}, []string{"kind"})

var escalationSuppressedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_escalations_suppressed",
	Help: "Number of escalation events suppressed by the daily circuit breaker",
}, []string{"kind"})
