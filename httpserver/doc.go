// Package httpserver provides the HTTP server shell of the provisioning
// service: a chi router with request logging, liveness/readiness endpoints,
// drain/undrain controls for load-balanced deployments, optional pprof, and
// an optional Prometheus metrics listener. Application routes are mounted
// through the RouteRegistrar interface.
package httpserver
