// Package api provides the HTTP REST API and live event WebSocket of the
// facility service.
//
// Every hierarchy level is served under its parent:
//
//	/api/v1/organizations/{organization}/sites/{site}/buildings/{building}/...
//
// With hierarchy.root set to site the same tree starts at /api/v1/sites.
// Authenticated routes carry a Bearer access token; the middleware turns
// its claims into the hierarchy.Principal every service call is scoped to.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
