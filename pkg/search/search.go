// Package search computes the frontend route for a global search.
package search

import (
	"net/url"
)

// Search routes.
const (
	RouteSearch        = "/home/search"
	RouteUnifiedSearch = "/home/unified-search"
)

// UnifiedSearchController selects the unified search route.
const UnifiedSearchController = "UnifiedSearch"

// Navigation is the route and query parameters to navigate to.
type Navigation struct {
	Route       string            `json:"route"`
	QueryParams map[string]string `json:"queryParams"`
}

// URL renders the navigation as a relative URL.
func (n Navigation) URL() string {
	q := url.Values{}
	for k, v := range n.QueryParams {
		q.Set(k, v)
	}
	return n.Route + "?" + q.Encode()
}

// NavigateToSearch returns the search route for term. The query_string
// parameter is always present, empty when term is empty.
func NavigateToSearch(term, controller string) Navigation {
	route := RouteSearch
	if controller == UnifiedSearchController {
		route = RouteUnifiedSearch
	}
	return Navigation{
		Route:       route,
		QueryParams: map[string]string{"query_string": term},
	}
}
