// Package middleware holds the gin middleware of the control surface.
//
//   - CORS: lets local dashboards call the API
//   - RateLimit: per-IP token bucket with idle client eviction
//   - GlobalRateLimit: one token bucket for every caller
package middleware
