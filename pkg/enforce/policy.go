package enforce

// RoutePolicy is the static per-route enforcement configuration. The yaml
// tags match the routes file loaded at startup.
type RoutePolicy struct {
	RouteID         string `json:"routeId" yaml:"route_id"`
	Scope           string `json:"scope" yaml:"scope"`
	Service         string `json:"service" yaml:"service"`
	PriceAtomic     int64  `json:"priceAtomic" yaml:"price_atomic"`
	RateLimitPerMin int    `json:"rateLimitPerMin" yaml:"rate_limit_per_min"`
	RequirePayment  bool   `json:"requirePayment" yaml:"require_payment"`
}

// effectiveRateLimit is the binding per-minute limit: the stricter of the
// passport's and the route's, where zero means unlimited.
func effectiveRateLimit(passportLimit, routeLimit int) int {
	switch {
	case passportLimit <= 0:
		return routeLimit
	case routeLimit <= 0:
		return passportLimit
	case passportLimit < routeLimit:
		return passportLimit
	default:
		return routeLimit
	}
}
