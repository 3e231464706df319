package extract

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/obsidianstack/newrelic-exporter/internal/upstream"
)

func entitiesResponse(entities string) *upstream.Response {
	return &upstream.Response{
		Data: []byte(`{"actor":{"entitySearch":{"results":{"entities":` + entities + `}}}}`),
	}
}

func byKind(samples []MetricSample, k Kind) []MetricSample {
	var out []MetricSample
	for _, s := range samples {
		if s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// mustEntities runs Entities and fails the test on error.
func mustEntities(t *testing.T, resp *upstream.Response) []MetricSample {
	t.Helper()
	samples, err := Entities(context.Background(), resp)
	if err != nil {
		t.Fatalf("Entities() unexpected error: %v", err)
	}
	return samples
}

func TestEntities_FullSummary(t *testing.T) {
	samples := mustEntities(t, entitiesResponse(`[{
		"name": "checkout",
		"guid": "MXxBUE18QVBQTElDQVRJT058MQ",
		"apmSummary": {
			"apdexScore": 0.93,
			"errorRate": 0.012,
			"hostCount": 3,
			"webResponseTimeAverage": 0.2,
			"webThroughput": 1520.5
		}
	}]`))

	want := []MetricSample{
		{Kind: KindApdexScore, Labels: []string{"checkout"}, Value: 0.93},
		{Kind: KindErrorRate, Labels: []string{"checkout"}, Value: 0.012},
		{Kind: KindResponseTime, Labels: []string{"checkout"}, Value: 200},
		{Kind: KindThroughput, Labels: []string{"checkout"}, Value: 1520.5},
	}
	if !reflect.DeepEqual(samples, want) {
		t.Errorf("samples:\n got %+v\nwant %+v", samples, want)
	}
}

func TestEntities_ResponseTimeInMilliseconds(t *testing.T) {
	samples := mustEntities(t, entitiesResponse(`[
		{"name": "a", "apmSummary": {"webResponseTimeAverage": 0.2, "responseTimeAverage": 5}},
		{"name": "b", "apmSummary": {"webResponseTimeAverage": 1.5}}
	]`))

	rt := byKind(samples, KindResponseTime)
	if len(rt) != 2 {
		t.Fatalf("response time samples: got %d, want 2", len(rt))
	}
	if math.Abs(rt[0].Value-200) > 1e-9 {
		t.Errorf("a: got %v, want 200", rt[0].Value)
	}
	if math.Abs(rt[1].Value-1500) > 1e-9 {
		t.Errorf("b: got %v, want 1500", rt[1].Value)
	}
}

func TestEntities_PartialSummary(t *testing.T) {
	samples := mustEntities(t, entitiesResponse(`[
		{"name": "A", "apmSummary": {"apdexScore": 0.95}},
		{"name": "B", "apmSummary": {}}
	]`))

	want := []MetricSample{{Kind: KindApdexScore, Labels: []string{"A"}, Value: 0.95}}
	if !reflect.DeepEqual(samples, want) {
		t.Errorf("samples: got %+v, want %+v", samples, want)
	}
}

func TestEntities_MissingKeyOnlyDropsThatMetric(t *testing.T) {
	samples := mustEntities(t, entitiesResponse(`[
		{"name": "api", "apmSummary": {"apdexScore": 0.8, "webThroughput": 42}}
	]`))

	for k, want := range map[Kind]int{
		KindApdexScore:   1,
		KindThroughput:   1,
		KindErrorRate:    0,
		KindResponseTime: 0,
	} {
		if got := len(byKind(samples, k)); got != want {
			t.Errorf("kind %d: got %d samples, want %d", k, got, want)
		}
	}
}

func TestEntities_NonNumericFieldOnlyDropsThatMetric(t *testing.T) {
	samples := mustEntities(t, entitiesResponse(`[
		{"name": "A", "apmSummary": {
			"apdexScore": 0.95,
			"errorRate": "n/a",
			"webResponseTimeAverage": 0.1,
			"webThroughput": 12,
			"hostCount": "unknown"
		}}
	]`))

	want := []MetricSample{
		{Kind: KindApdexScore, Labels: []string{"A"}, Value: 0.95},
		{Kind: KindResponseTime, Labels: []string{"A"}, Value: 100},
		{Kind: KindThroughput, Labels: []string{"A"}, Value: 12},
	}
	if !reflect.DeepEqual(samples, want) {
		t.Errorf("samples:\n got %+v\nwant %+v", samples, want)
	}
}

func TestEntities_NullValueTreatedAsAbsent(t *testing.T) {
	samples := mustEntities(t, entitiesResponse(`[{"name": "idle", "apmSummary": {"apdexScore": null, "errorRate": 0}}]`))

	want := []MetricSample{{Kind: KindErrorRate, Labels: []string{"idle"}, Value: 0}}
	if !reflect.DeepEqual(samples, want) {
		t.Errorf("samples: got %+v, want %+v", samples, want)
	}
}

func TestEntities_SkipsEntitiesWithoutSummaryOrName(t *testing.T) {
	samples := mustEntities(t, entitiesResponse(`[
		{"guid": "browser-app"},
		{"name": "no-traffic", "apmSummary": null},
		{"apmSummary": {"apdexScore": 1}},
		"not an object",
		{"name": "ok", "apmSummary": {"apdexScore": 0.5}}
	]`))

	want := []MetricSample{{Kind: KindApdexScore, Labels: []string{"ok"}, Value: 0.5}}
	if !reflect.DeepEqual(samples, want) {
		t.Errorf("samples: got %+v, want %+v", samples, want)
	}
}

func TestEntities_GroupedByMetric(t *testing.T) {
	samples := mustEntities(t, entitiesResponse(`[
		{"name": "a", "apmSummary": {"apdexScore": 1, "errorRate": 0.1}},
		{"name": "b", "apmSummary": {"apdexScore": 0.5, "errorRate": 0.2}}
	]`))

	kinds := make([]Kind, 0, len(samples))
	for _, s := range samples {
		kinds = append(kinds, s.Kind)
	}
	want := []Kind{KindApdexScore, KindApdexScore, KindErrorRate, KindErrorRate}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("kind order: got %v, want %v", kinds, want)
	}
}

func TestEntities_EmptyList(t *testing.T) {
	if samples := mustEntities(t, entitiesResponse(`[]`)); len(samples) != 0 {
		t.Errorf("samples: got %+v, want none", samples)
	}
}

func TestEntities_UpstreamErrors(t *testing.T) {
	resp := entitiesResponse(`[{"name": "a", "apmSummary": {"apdexScore": 1}}]`)
	resp.Errors = []upstream.Error{{Message: "Server error"}}

	_, err := Entities(context.Background(), resp)
	if !errors.Is(err, ErrUpstreamReported) {
		t.Fatalf("Entities() error = %v, want ErrUpstreamReported", err)
	}
	if !strings.Contains(err.Error(), "Server error") {
		t.Errorf("error %q does not carry the upstream message", err)
	}
}

func TestEntities_MissingPath(t *testing.T) {
	cases := map[string]*upstream.Response{
		"nil response":      nil,
		"no data":           {},
		"null data":         {Data: []byte(`null`)},
		"no actor":          {Data: []byte(`{}`)},
		"null entitySearch": {Data: []byte(`{"actor":{"entitySearch":null}}`)},
		"no entities":       {Data: []byte(`{"actor":{"entitySearch":{"results":{}}}}`)},
		"null entities":     entitiesResponse(`null`),
		"wrong shape":       {Data: []byte(`{"actor":[]}`)},
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Entities(context.Background(), resp); !errors.Is(err, ErrUpstreamReported) {
				t.Errorf("Entities() error = %v, want ErrUpstreamReported", err)
			}
		})
	}
}

func TestApmSummary_Float(t *testing.T) {
	s := ApmSummary{
		"apdexScore": []byte(`0.5`),
		"errorRate":  []byte(`null`),
		"hostCount":  []byte(`"three"`),
	}

	if v, err := s.Float("apdexScore"); err != nil || v == nil || *v != 0.5 {
		t.Errorf("apdexScore: got %v, %v", v, err)
	}
	if v, err := s.Float("errorRate"); err != nil || v != nil {
		t.Errorf("null errorRate: got %v, %v, want nil, nil", v, err)
	}
	if v, err := s.Float("webThroughput"); err != nil || v != nil {
		t.Errorf("absent webThroughput: got %v, %v, want nil, nil", v, err)
	}
	if _, err := s.Float("hostCount"); err == nil {
		t.Error("string hostCount: expected error, got nil")
	}
}

func TestDescriptors(t *testing.T) {
	descs := Descriptors()
	if len(descs) != 5 {
		t.Fatalf("Descriptors(): got %d, want 5", len(descs))
	}

	seen := map[string]bool{}
	for _, d := range descs {
		if seen[d.Name] {
			t.Errorf("duplicate family %s", d.Name)
		}
		seen[d.Name] = true
	}
	if want := []string{LabelAppName, LabelVersion}; !reflect.DeepEqual(descs[4].Labels, want) {
		t.Errorf("deployment labels: got %v, want %v", descs[4].Labels, want)
	}
	for _, d := range descs[:4] {
		if !reflect.DeepEqual(d.Labels, []string{LabelAppName}) {
			t.Errorf("%s labels: got %v", d.Name, d.Labels)
		}
	}
}
