// Package api exposes the broker's read-only debug surface over HTTP:
// peer introspection, Prometheus metrics, and a health probe. The surface
// is disabled by default, has no effect on the wire protocol, and should be
// bound to loopback.
package api
