// Package api serves the operations endpoint of Pulse Core.
//
// It is deliberately small: a health report and the Prometheus scrape
// endpoint, both unauthenticated and meant for the local network.
//
//	GET /api/v1/health   component checks, radio channels, lesson state
//	GET /metrics         Prometheus exposition
//
// The server follows the same lifecycle as the other components:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package api
