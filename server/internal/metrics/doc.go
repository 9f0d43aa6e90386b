// Package metrics exposes store, hub and producer counters in the Prometheus
// exposition format. Collectors build dto.MetricFamily values on each scrape
// from the components' own atomic counters; there is no global registry.
package metrics
