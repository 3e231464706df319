package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/obsidianstack/newrelic-exporter/internal/upstream"
)

// NRQL column names read from Deployment events.
const (
	columnAppName   = "entity.name"
	columnTimestamp = "timestamp"
	columnVersion   = "version"
)

// DeploymentEvent is one deployment record. AppName and Version are nil when
// the row had no value for them.
type DeploymentEvent struct {
	AppName         *string
	TimestampMillis int64
	Version         *string
}

// Sample converts the event into a deployment marker. Missing labels become
// empty strings. The timestamp is truncated to whole seconds.
func (d DeploymentEvent) Sample() MetricSample {
	return MetricSample{
		Kind:      KindDeployment,
		Labels:    []string{deref(d.AppName), deref(d.Version)},
		Value:     1,
		Timestamp: time.Unix(d.TimestampMillis/1000, 0),
	}
}

type nrqlData struct {
	Actor *struct {
		NRQL *struct {
			Results *[]json.RawMessage `json:"results"`
		} `json:"nrql"`
	} `json:"actor"`
}

// Deployments extracts deployment events from an NRQL deployment query
// response. Rows with a null app name or version are kept. Rows without a
// numeric timestamp cannot be placed in time and are skipped.
func Deployments(ctx context.Context, resp *upstream.Response) ([]DeploymentEvent, error) {
	if resp.HasErrors() {
		return nil, fmt.Errorf("extract: deployments: %w: %w", ErrUpstreamReported, resp.Err())
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, fmt.Errorf("extract: deployments: %w: no data", ErrUpstreamReported)
	}

	var data nrqlData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("extract: deployments: %w: decode data: %w", ErrUpstreamReported, err)
	}
	if data.Actor == nil || data.Actor.NRQL == nil || data.Actor.NRQL.Results == nil {
		return nil, fmt.Errorf("extract: deployments: %w: missing data.actor.nrql.results", ErrUpstreamReported)
	}

	rows := *data.Actor.NRQL.Results
	events := make([]DeploymentEvent, 0, len(rows))
	for i, r := range rows {
		ev, err := decodeDeployment(r)
		if err != nil {
			slog.WarnContext(ctx, "extract: skipping deployment row", "index", i, "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeDeployment(raw json.RawMessage) (DeploymentEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return DeploymentEvent{}, fmt.Errorf("decode row: %w", err)
	}
	if row == nil {
		return DeploymentEvent{}, errors.New("null row")
	}

	ts, err := millis(row[columnTimestamp])
	if err != nil {
		return DeploymentEvent{}, err
	}
	return DeploymentEvent{
		AppName:         stringValue(row[columnAppName]),
		TimestampMillis: ts,
		Version:         stringValue(row[columnVersion]),
	}, nil
}

func millis(v any) (int64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%s: want number, got %T", columnTimestamp, v)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", columnTimestamp, err)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if !(f >= math.MinInt64 && f < math.MaxInt64) {
		return 0, fmt.Errorf("%s: %s out of range", columnTimestamp, n)
	}
	return int64(f), nil
}

// stringValue returns nil for null or absent values. Non-string scalars such
// as numeric versions keep their JSON text.
func stringValue(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case json.Number:
		s := t.String()
		return &s
	default:
		s := fmt.Sprint(t)
		return &s
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
