package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/obsidianstack/newrelic-exporter/internal/upstream"
)

// ErrUpstreamReported marks a response that arrived intact but reports a
// query error or does not contain the expected data.
var ErrUpstreamReported = errors.New("upstream reported an error")

// ApmEntitySnapshot is one application's current performance summary.
type ApmEntitySnapshot struct {
	Name    string
	Summary ApmSummary
}

// ApmSummary holds the raw apmSummary fields by key. Each field is read on
// its own, so one unreadable value never hides the others.
type ApmSummary map[string]json.RawMessage

// Float returns the numeric value of field. It returns nil and no error when
// the field is absent or null.
func (s ApmSummary) Float(field string) (*float64, error) {
	raw, ok := s[field]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &v, nil
}

type entitySearchData struct {
	Actor *struct {
		EntitySearch *struct {
			Results *struct {
				Entities *[]json.RawMessage `json:"entities"`
			} `json:"results"`
		} `json:"entitySearch"`
	} `json:"actor"`
}

type entityOutline struct {
	Name       *string    `json:"name"`
	GUID       string     `json:"guid"`
	ApmSummary ApmSummary `json:"apmSummary"`
}

// Entities extracts per-application samples from an entity search response.
// Samples are grouped by metric in EntityMetrics order.
//
// Entities without an apmSummary have no monitored traffic and are skipped.
// A summary field that is absent, null or not a number produces no sample
// for that metric only; the entity's other metrics are still emitted.
func Entities(ctx context.Context, resp *upstream.Response) ([]MetricSample, error) {
	snaps, err := decodeEntities(ctx, resp)
	if err != nil {
		return nil, err
	}

	var samples []MetricSample
	for _, m := range EntityMetrics {
		for i := range snaps {
			v, err := snaps[i].Summary.Float(m.Field)
			if err != nil {
				slog.DebugContext(ctx, "extract: skipping unreadable summary field",
					"appname", snaps[i].Name, "field", m.Field, "err", err)
				continue
			}
			if v == nil {
				continue
			}
			samples = append(samples, MetricSample{
				Kind:   m.Kind,
				Labels: []string{snaps[i].Name},
				Value:  *v * m.Scale,
			})
		}
	}
	return samples, nil
}

func decodeEntities(ctx context.Context, resp *upstream.Response) ([]ApmEntitySnapshot, error) {
	if resp.HasErrors() {
		return nil, fmt.Errorf("extract: entities: %w: %w", ErrUpstreamReported, resp.Err())
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, fmt.Errorf("extract: entities: %w: no data", ErrUpstreamReported)
	}

	var data entitySearchData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("extract: entities: %w: decode data: %w", ErrUpstreamReported, err)
	}
	if data.Actor == nil || data.Actor.EntitySearch == nil ||
		data.Actor.EntitySearch.Results == nil || data.Actor.EntitySearch.Results.Entities == nil {
		return nil, fmt.Errorf("extract: entities: %w: missing data.actor.entitySearch.results.entities", ErrUpstreamReported)
	}

	raw := *data.Actor.EntitySearch.Results.Entities
	snaps := make([]ApmEntitySnapshot, 0, len(raw))
	for i, r := range raw {
		var e entityOutline
		if err := json.Unmarshal(r, &e); err != nil {
			slog.WarnContext(ctx, "extract: skipping malformed entity", "index", i, "err", err)
			continue
		}
		if e.ApmSummary == nil {
			continue
		}
		if e.Name == nil {
			slog.DebugContext(ctx, "extract: skipping entity without name", "guid", e.GUID)
			continue
		}
		snaps = append(snaps, ApmEntitySnapshot{Name: *e.Name, Summary: e.ApmSummary})
	}
	return snaps, nil
}
