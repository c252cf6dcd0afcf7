// Package emit implements component J: the contract by which a
// finished analog-day record (plus its delta and candidate list) is
// handed to the external output layer, decoupled from any one
// transport (spec §4.I output, §6 output data contract).
package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/cerfacs-go/dsclim/internal/dsclim/merge"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
	"github.com/cerfacs-go/dsclim/pkg/mqtt"
)

// DownscaledDay is the wire shape of one output slot (spec §6 output
// data contract): analog date/index, delta, first-selection candidates
// and the cluster distance/class, plus an ancillary astronomical
// diagnostic computed independently of the model (local day length),
// useful for sanity-checking seasonal coverage of the output stream.
type DownscaledDay struct {
	RunID         string    `json:"run_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	Date          string    `json:"date"`
	Index         int       `json:"index"`
	Sentinel      bool      `json:"sentinel"`
	AnalogDate    string    `json:"analog_date,omitempty"`
	AnalogIndex   int       `json:"analog_index,omitempty"`
	Delta         float64   `json:"delta,omitempty"`
	Candidates    []CandidateOut `json:"candidates,omitempty"`
	ClassDownscaled int     `json:"class_downscaled,omitempty"`
	Distance      []float64 `json:"distance,omitempty"`
	DaylengthHours float64  `json:"local_daylength_hours,omitempty"`
}

// CandidateOut is one first-selection candidate on the wire.
type CandidateOut struct {
	Date   string  `json:"date"`
	Index  int     `json:"index"`
	Metric float64 `json:"normalized_metric"`
	Delta  float64 `json:"delta"`
}

// Emitter is the sink for finished downscaled-day records. Implementers
// must be safe to call once per global-record slot; callers are not
// required to call it concurrently, but nothing here prevents it.
type Emitter interface {
	Emit(ctx context.Context, day DownscaledDay) error
	Close() error
}

// AnchorLocation is the (lon, lat) used for the daylength diagnostic;
// the pipeline's first regression anchor point is a sensible default.
type AnchorLocation struct {
	Lon, Lat float64
}

// BuildDownscaledDay converts one merged global record into its wire
// shape, computing the local daylength diagnostic for the record's
// calendar date at the given anchor.
func BuildDownscaledDay(run types.RunMetadata, gr merge.GlobalRecord, anchor AnchorLocation) DownscaledDay {
	out := DownscaledDay{
		RunID:       run.RunID,
		GeneratedAt: run.GeneratedAt,
		Date:        formatDate(gr.Day),
		Index:       gr.Day.Index,
		Distance:    gr.Distance,
	}
	out.DaylengthHours = daylengthHours(gr.Day, anchor)

	if gr.Analog == nil {
		out.Sentinel = true
		return out
	}

	out.AnalogDate = formatDate(gr.Analog.ChosenAnalog.LearnDay)
	out.AnalogIndex = gr.Analog.ChosenAnalog.LearnIndex
	out.Delta = gr.Analog.Delta
	out.ClassDownscaled = gr.Analog.ClassDownscaled

	out.Candidates = make([]CandidateOut, len(gr.Analog.Candidates))
	for i, c := range gr.Analog.Candidates {
		cd := CandidateOut{Date: formatDate(c.LearnDay), Index: c.LearnIndex, Metric: c.NormalizedMetric}
		if i < len(gr.Analog.CandidateDeltas) {
			cd.Delta = gr.Analog.CandidateDeltas[i]
		}
		out.Candidates[i] = cd
	}
	return out
}

func formatDate(d types.Day) string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// daylengthHours returns the hours between sunrise and sunset at the
// anchor location on d's calendar date. If the anchor is degenerate
// (zero lon/lat, meaning "not configured") it returns 0 rather than
// computing a meaningless figure for Null Island.
func daylengthHours(d types.Day, anchor AnchorLocation) float64 {
	if anchor.Lon == 0 && anchor.Lat == 0 {
		return 0
	}
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 12, 0, 0, 0, time.UTC)
	times := suncalc.GetTimes(t, anchor.Lat, anchor.Lon)
	sunrise, okR := times[suncalc.Sunrise]
	sunset, okS := times[suncalc.Sunset]
	if !okR || !okS {
		return 0
	}
	hours := sunset.Value.Sub(sunrise.Value).Hours()
	if hours < 0 || math.IsNaN(hours) {
		return 0
	}
	return hours
}

// ChannelEmitter emits onto an in-process channel, for tests and for
// wiring the core directly to an in-process writer without a broker.
type ChannelEmitter struct {
	Out chan<- DownscaledDay
}

func NewChannelEmitter(out chan<- DownscaledDay) *ChannelEmitter {
	return &ChannelEmitter{Out: out}
}

func (e *ChannelEmitter) Emit(ctx context.Context, day DownscaledDay) error {
	select {
	case e.Out <- day:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *ChannelEmitter) Close() error { return nil }

// MQTTEmitter publishes each downscaled day as a retained JSON message
// under a per-date topic, using the platform's mqtt.Client abstraction.
type MQTTEmitter struct {
	client    mqtt.Client
	topicBase string
	qos       byte
	logger    *slog.Logger
}

// NewMQTTEmitter wraps an already-connected mqtt.Client. topicBase is
// the prefix under which each day is published, e.g.
// "dsclim/<run-id>/downscaled".
func NewMQTTEmitter(client mqtt.Client, topicBase string, qos byte, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{client: client, topicBase: topicBase, qos: qos, logger: logger}
}

func (e *MQTTEmitter) Emit(ctx context.Context, day DownscaledDay) error {
	payload, err := json.Marshal(day)
	if err != nil {
		return fmt.Errorf("emit: marshaling downscaled day %s: %w", day.Date, err)
	}
	topic := fmt.Sprintf("%s/%s", e.topicBase, day.Date)
	if err := e.client.Publish(topic, e.qos, true, payload); err != nil {
		return fmt.Errorf("emit: publishing downscaled day %s: %w", day.Date, err)
	}
	e.logger.Debug("emitted downscaled day", "topic", topic, "sentinel", day.Sentinel)
	return nil
}

func (e *MQTTEmitter) Close() error {
	e.client.Disconnect()
	return nil
}
