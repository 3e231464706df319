package extract

import (
	"fmt"
	"time"
)

// DefaultDeploymentWindow is how far back deployments are queried.
const DefaultDeploymentWindow = time.Hour

// EntitySearchQuery lists every APM application with its summary.
const EntitySearchQuery = `{actor {entitySearch(queryBuilder: {domain: APM}) {results {entities {... on ApmApplicationEntityOutline {name apmSummary {apdexScore errorRate hostCount instanceCount nonWebResponseTimeAverage nonWebThroughput responseTimeAverage throughput webResponseTimeAverage webThroughput}} guid}}}}}`

// DeploymentQuery renders the NRQL query for deployments in the trailing
// window on one account. The window is rendered in whole seconds, at least 1.
func DeploymentQuery(account int64, window time.Duration) string {
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf(
		`{actor {nrql(query: "SELECT * FROM Deployment SINCE %d seconds AGO", accounts: %d) {nrql results}}}`,
		secs, account,
	)
}
