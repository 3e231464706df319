// Package collector implements the prometheus.Collector that bridges
// NerdGraph to the exposition endpoint.
//
// Every Collect call is one independent collection, run synchronously on the
// scraping goroutine:
//
//  1. entity search query → extract.Entities → four per-application gauges
//  2. deployment NRQL query → extract.Deployments → deployment markers
//
// Step 2 is only issued after step 1 succeeded. Nothing is cached or retried
// between collections.
package collector
