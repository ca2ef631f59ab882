package config

import (
	"fmt"
	"os"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/enforce"
	"gopkg.in/yaml.v3"
)

// RoutesFile is the on-disk shape of the route policy table.
type RoutesFile struct {
	Routes []enforce.RoutePolicy `yaml:"routes"`
}

// LoadRoutes reads the route policy table from a YAML file. Every route
// needs a routeId, scope, and service; a paid route needs a positive
// price.
func LoadRoutes(path string) ([]enforce.RoutePolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}

	var file RoutesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse routes file %s: %w", path, err)
	}
	if len(file.Routes) == 0 {
		return nil, fmt.Errorf("routes file %s declares no routes", path)
	}

	seen := make(map[string]bool, len(file.Routes))
	for i, r := range file.Routes {
		if r.RouteID == "" {
			return nil, fmt.Errorf("route %d: routeId is required", i)
		}
		if seen[r.RouteID] {
			return nil, fmt.Errorf("route %q declared twice", r.RouteID)
		}
		seen[r.RouteID] = true
		if r.Scope == "" || r.Service == "" {
			return nil, fmt.Errorf("route %q: scope and service are required", r.RouteID)
		}
		if r.RequirePayment && r.PriceAtomic <= 0 {
			return nil, fmt.Errorf("route %q: paid route needs a positive price", r.RouteID)
		}
		if r.PriceAtomic < 0 || r.RateLimitPerMin < 0 {
			return nil, fmt.Errorf("route %q: negative policy values", r.RouteID)
		}
	}
	return file.Routes, nil
}
