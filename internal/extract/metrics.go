package extract

import "time"

// Kind identifies one exported metric family.
type Kind int

const (
	KindApdexScore Kind = iota
	KindErrorRate
	KindResponseTime
	KindThroughput
	KindDeployment
)

// Label names.
const (
	LabelAppName = "appname"
	LabelVersion = "version"
)

// Descriptor is the static description of one exported gauge family.
type Descriptor struct {
	Kind   Kind
	Name   string
	Help   string
	Labels []string
}

// EntityMetric maps one apmSummary field onto a gauge family.
type EntityMetric struct {
	Descriptor

	// Field is the apmSummary key, as named in the entity search query.
	Field string

	// Scale multiplies the upstream value before export. 1 means no unit
	// conversion.
	Scale float64
}

// EntityMetrics lists the per-application gauges, in export order.
var EntityMetrics = []EntityMetric{
	{
		Descriptor: Descriptor{
			Kind:   KindApdexScore,
			Name:   "newrelic_application_apdex_score",
			Help:   "New Relic application Apdex score.",
			Labels: []string{LabelAppName},
		},
		Field: "apdexScore",
		Scale: 1,
	},
	{
		Descriptor: Descriptor{
			Kind:   KindErrorRate,
			Name:   "newrelic_application_error_rate",
			Help:   "New Relic application error rate.",
			Labels: []string{LabelAppName},
		},
		Field: "errorRate",
		Scale: 1,
	},
	{
		Descriptor: Descriptor{
			Kind:   KindResponseTime,
			Name:   "newrelic_application_response_time",
			Help:   "New Relic application average web response time in milliseconds.",
			Labels: []string{LabelAppName},
		},
		Field: "webResponseTimeAverage",
		// Reported in seconds, exported in milliseconds.
		Scale: 1000,
	},
	{
		Descriptor: Descriptor{
			Kind:   KindThroughput,
			Name:   "newrelic_application_throughput",
			Help:   "New Relic application web throughput in requests per minute.",
			Labels: []string{LabelAppName},
		},
		Field: "webThroughput",
		Scale: 1,
	},
}

// DeploymentMetric describes the deployment marker family. Every sample has
// value 1 and carries the deployment time as its timestamp.
var DeploymentMetric = Descriptor{
	Kind:   KindDeployment,
	Name:   "newrelic_application_deployment",
	Help:   "New Relic application deployment marker.",
	Labels: []string{LabelAppName, LabelVersion},
}

// Descriptors returns every family the exporter can emit, entity gauges first.
func Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(EntityMetrics)+1)
	for _, m := range EntityMetrics {
		out = append(out, m.Descriptor)
	}
	return append(out, DeploymentMetric)
}

// MetricSample is one value ready for exposition. Labels are ordered like the
// Labels of the family's Descriptor.
type MetricSample struct {
	Kind   Kind
	Labels []string
	Value  float64

	// Timestamp is the explicit sample time. The zero value means the sample
	// is exposed without a timestamp.
	Timestamp time.Time
}
