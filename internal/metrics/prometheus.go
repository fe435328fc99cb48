package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Collectors are created eagerly so packages can record without a registry
// (tests); InitCustomMetrics exposes them.
var (
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "market_tokens_issued_total",
		Help: "Total number of session tokens issued.",
	})
	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "market_tokens_refreshed_total",
		Help: "Total number of session tokens refreshed.",
	})
	TokensRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "market_tokens_revoked_total",
		Help: "Total number of session tokens revoked.",
	})
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "market_logins_success_total",
		Help: "Total number of successful logins.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "market_logins_failure_total",
		Help: "Total number of failed logins.",
	})
	AccountsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_accounts_created_total",
		Help: "Total number of accounts created, by role.",
	}, []string{"role"})
	GateRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_gate_rejections_total",
		Help: "Requests rejected by the access gate, by reason.",
	}, []string{"reason"})
	ProfileCacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_profile_cache_lookups_total",
		Help: "Profile cache lookups, by result (hit, miss, corrupt, error).",
	}, []string{"result"})
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by policy.",
	}, []string{"policy"})
)

// InitCustomMetrics registers the custom Prometheus metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	for name, c := range map[string]prometheus.Collector{
		"TokensIssuedTotal":        TokensIssuedTotal,
		"TokensRefreshedTotal":     TokensRefreshedTotal,
		"TokensRevokedTotal":       TokensRevokedTotal,
		"LoginSuccessTotal":        LoginSuccessTotal,
		"LoginFailureTotal":        LoginFailureTotal,
		"AccountsCreatedTotal":     AccountsCreatedTotal,
		"GateRejectionsTotal":      GateRejectionsTotal,
		"ProfileCacheLookupsTotal": ProfileCacheLookupsTotal,
		"RateLimitedTotal":         RateLimitedTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
