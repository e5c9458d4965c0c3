package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campuscms_signins_total",
		Help: "Successful sign-ins.",
	})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscms_transitions_total",
		Help: "Publication status transitions.",
	}, []string{"kind", "to"})

	Denials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campuscms_authz_denials_total",
		Help: "Requests denied by the access control evaluator.",
	})

	PublicViews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscms_public_views_total",
		Help: "Public content reads that counted a view.",
	}, []string{"kind"})
)
