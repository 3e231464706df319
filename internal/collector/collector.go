package collector

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsidianstack/newrelic-exporter/internal/extract"
	"github.com/obsidianstack/newrelic-exporter/internal/logger"
	"github.com/obsidianstack/newrelic-exporter/internal/upstream"
)

// Options configures a Collector.
type Options struct {
	// AccountID scopes the deployment query.
	AccountID int64

	// DeploymentWindow is the trailing window for deployment events.
	// Zero means extract.DefaultDeploymentWindow.
	DeploymentWindow time.Duration
}

// Collector is a prometheus.Collector that queries NerdGraph on every
// Collect call. It keeps no state between calls.
type Collector struct {
	client upstream.Querier
	opts   Options

	entityDescs    map[extract.Kind]*prometheus.Desc
	deploymentDesc *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// New returns a Collector that issues its queries through client.
func New(client upstream.Querier, opts Options) *Collector {
	if opts.DeploymentWindow <= 0 {
		opts.DeploymentWindow = extract.DefaultDeploymentWindow
	}
	c := &Collector{
		client:      client,
		opts:        opts,
		entityDescs: make(map[extract.Kind]*prometheus.Desc, len(extract.EntityMetrics)),
	}
	for _, d := range extract.Descriptors() {
		if d.Kind == extract.KindDeployment {
			c.deploymentDesc = newDesc(d)
			continue
		}
		c.entityDescs[d.Kind] = newDesc(d)
	}
	return c
}

func newDesc(d extract.Descriptor) *prometheus.Desc {
	return prometheus.NewDesc(d.Name, d.Help, d.Labels, nil)
}

// Describe sends the descriptors of every family the collector can emit.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range extract.Descriptors() {
		ch <- c.descFor(d.Kind)
	}
}

// Collect runs one collection: the entity query, then the deployment query.
//
// A transport failure on the entity query aborts the whole collection and is
// reported to the registry as an invalid metric. An upstream-reported error
// on the entity query aborts silently apart from the log line. Failures on
// the deployment query never withdraw the entity samples already sent.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, _ := logger.WithScrapeID(context.Background())
	start := time.Now()
	slog.DebugContext(ctx, "collector: collection started")

	resp, err := c.client.Query(ctx, extract.EntitySearchQuery)
	if err != nil {
		slog.ErrorContext(ctx, "collector: entity query failed", "err", err)
		ch <- prometheus.NewInvalidMetric(c.entityDescs[extract.KindApdexScore], err)
		return
	}
	samples, err := extract.Entities(ctx, resp)
	if err != nil {
		slog.WarnContext(ctx, "collector: error getting entities", "err", err)
		return
	}
	entityCount := c.emit(ctx, ch, dedupeEntities(ctx, samples))

	deployCount, err := c.collectDeployments(ctx, ch)
	if err != nil {
		if errors.Is(err, upstream.ErrTransport) {
			slog.ErrorContext(ctx, "collector: deployment query failed", "err", err)
			ch <- prometheus.NewInvalidMetric(c.deploymentDesc, err)
		} else {
			slog.WarnContext(ctx, "collector: error getting deployments", "err", err)
		}
	}

	slog.DebugContext(ctx, "collector: collection finished",
		"entity_samples", entityCount,
		"deployment_samples", deployCount,
		"duration", time.Since(start),
	)
}

func (c *Collector) collectDeployments(ctx context.Context, ch chan<- prometheus.Metric) (int, error) {
	resp, err := c.client.Query(ctx, extract.DeploymentQuery(c.opts.AccountID, c.opts.DeploymentWindow))
	if err != nil {
		return 0, err
	}
	events, err := extract.Deployments(ctx, resp)
	if err != nil {
		return 0, err
	}

	samples := make([]extract.MetricSample, 0, len(events))
	for _, ev := range events {
		samples = append(samples, ev.Sample())
	}
	return c.emit(ctx, ch, dedupeDeployments(samples)), nil
}

// emit converts samples to const metrics and sends them. It returns the
// number of metrics sent.
func (c *Collector) emit(ctx context.Context, ch chan<- prometheus.Metric, samples []extract.MetricSample) int {
	n := 0
	for _, s := range samples {
		desc := c.descFor(s.Kind)
		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, s.Value, s.Labels...)
		if err != nil {
			slog.ErrorContext(ctx, "collector: build metric", "desc", desc.String(), "err", err)
			ch <- prometheus.NewInvalidMetric(desc, err)
			continue
		}
		if !s.Timestamp.IsZero() {
			m = prometheus.NewMetricWithTimestamp(s.Timestamp, m)
		}
		ch <- m
		n++
	}
	return n
}

func (c *Collector) descFor(k extract.Kind) *prometheus.Desc {
	if k == extract.KindDeployment {
		return c.deploymentDesc
	}
	return c.entityDescs[k]
}

func labelKey(s extract.MetricSample) string {
	return strings.Join(s.Labels, "\xff")
}

// dedupeEntities keeps the first sample per metric and application name.
// NerdGraph can return two applications with the same name; the registry
// rejects duplicate label sets.
func dedupeEntities(ctx context.Context, samples []extract.MetricSample) []extract.MetricSample {
	type key struct {
		kind   extract.Kind
		labels string
	}
	seen := make(map[key]struct{}, len(samples))
	out := samples[:0]
	for _, s := range samples {
		k := key{s.Kind, labelKey(s)}
		if _, dup := seen[k]; dup {
			slog.DebugContext(ctx, "collector: dropping duplicate application", "appname", s.Labels[0])
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

// dedupeDeployments keeps the latest deployment per application and version,
// in order of first appearance.
func dedupeDeployments(samples []extract.MetricSample) []extract.MetricSample {
	index := make(map[string]int, len(samples))
	out := make([]extract.MetricSample, 0, len(samples))
	for _, s := range samples {
		k := labelKey(s)
		if i, ok := index[k]; ok {
			if s.Timestamp.After(out[i].Timestamp) {
				out[i] = s
			}
			continue
		}
		index[k] = len(out)
		out = append(out, s)
	}
	return out
}
