package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	IdentitiesUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "loginza", Name: "identities_upserted_total", Help: "Number of broker identity upserts by provider."},
		[]string{"provider"},
	)
	MappingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "loginza", Name: "mappings_created_total", Help: "Number of new identity-to-user maps by provider."},
		[]string{"provider"},
	)
	WidgetsRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "loginza", Name: "widgets_rendered_total", Help: "Number of widget fragments rendered by kind."},
		[]string{"kind"},
	)
	AvatarFetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "loginza", Name: "avatar_fetch_failures_total", Help: "Number of failed avatar downloads (non-fatal)."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "loginza", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "loginza", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(IdentitiesUpserted)
	reg.MustRegister(MappingsCreated)
	reg.MustRegister(WidgetsRendered)
	reg.MustRegister(AvatarFetchFailures)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
