package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chathub_connected_count",
		Help: "Cluster-wide connected sessions, as seen by this process.",
	})
	localSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chathub_local_sessions",
		Help: "Connections held by this process.",
	})
	replicationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_replication_events_total",
		Help: "Replication events by kind and outcome.",
	}, []string{"kind", "result"})
	authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_auth_failures_total",
		Help: "Rejected authentication attempts.",
	}, []string{"reason"})
	securityViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_security_violations_total",
		Help: "Privileged commands sent by unprivileged sessions.",
	}, []string{"command"})
	chatMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_chat_messages_total",
		Help: "Relayed chat messages by sender role.",
	}, []string{"role"})
	profanityHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chathub_profanity_hits_total",
		Help: "Chat messages replaced by the profanity filter.",
	})
)
