// Package extract turns NerdGraph responses into metric samples.
//
// metrics.go holds the explicit table of exported metrics (name, help,
// labels, which apmSummary field feeds it and its unit scale). Entities
// decodes the APM entity search and emits one sample per metric the entity
// actually reports; Deployments decodes the NRQL deployment rows. Both return
// ErrUpstreamReported when the response carries GraphQL errors or lacks the
// expected data path.
//
// queries.go renders the two GraphQL documents the collector sends.
package extract
