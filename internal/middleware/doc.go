// Package middleware provides HTTP middleware for the clipping service.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics with bounded path cardinality
//   - Configurable filtering for health check endpoints
package middleware
