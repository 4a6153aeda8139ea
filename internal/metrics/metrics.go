package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	priceFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_price_fallbacks_total",
			Help: "Weight prices computed locally because the pricing endpoint failed",
		},
		[]string{"reason"},
	)

	staleResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_stale_responses_total",
			Help: "Async responses dropped because their inputs were superseded",
		},
		[]string{"source"},
	)

	sessionExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_session_expirations_total",
			Help: "Sessions cleared by the guard",
		},
		[]string{"cause"},
	)

	checkoutSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_submissions_total",
			Help: "Order submissions by outcome",
		},
		[]string{"outcome"},
	)
)

func PriceFallback(reason string) {
	priceFallbacks.With(prometheus.Labels{"reason": reason}).Inc()
}

func StaleResponse(source string) {
	staleResponses.With(prometheus.Labels{"source": source}).Inc()
}

func SessionExpired(cause string) {
	sessionExpirations.With(prometheus.Labels{"cause": cause}).Inc()
}

func CheckoutSubmitted(outcome string) {
	checkoutSubmissions.With(prometheus.Labels{"outcome": outcome}).Inc()
}
