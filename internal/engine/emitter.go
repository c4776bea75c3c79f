package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/watchstack/watchstack-anomaly/internal/cache"
	"github.com/watchstack/watchstack-anomaly/internal/models"
)

// AlertSink receives finished alert records. Implementations persist or
// forward them; rendering is their concern, not the emitter's.
type AlertSink interface {
	Persist(ctx context.Context, record models.AlertRecord) error
}

// Emitter assembles classified anomalies into immutable alert records and
// hands them to the configured sinks. Emission is idempotent per anomaly ID
// and sink: a sink that already received the record never gets it twice, so
// callers may retry after a downstream failure without double-counting.
type Emitter struct {
	logger    *slog.Logger
	dedupe    cache.Provider
	dedupeTTL time.Duration
	source    string
	sinks     []AlertSink
	now       func() time.Time
}

// NewEmitter constructs an Emitter. The cache provider backs the anomaly-ID
// dedupe window; pass cache.NoopProvider to disable deduplication.
func NewEmitter(logger *slog.Logger, dedupe cache.Provider, dedupeTTL time.Duration, source string, sinks ...AlertSink) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	if dedupe == nil {
		dedupe = cache.NoopProvider{}
	}
	if dedupeTTL <= 0 {
		dedupeTTL = time.Hour
	}
	return &Emitter{
		logger:    logger,
		dedupe:    dedupe,
		dedupeTTL: dedupeTTL,
		source:    source,
		sinks:     sinks,
		now:       time.Now,
	}
}

// Emit builds the alert record for a classified anomaly and dispatches it.
// Resource telemetry arrives as a tagged variant: an unreachable resource
// monitor degrades into an explicit error marker inside the record, never
// into a failed emission.
func (e *Emitter) Emit(
	ctx context.Context,
	anomaly models.Anomaly,
	actions []string,
	system models.SystemStateSnapshot,
	efficiency models.EfficiencySnapshot,
	usage models.ResourceUsage,
) (models.AlertRecord, error) {
	record := e.buildRecord(anomaly, actions, system, efficiency, usage)
	return record, e.EmitRecord(ctx, record)
}

// EmitRecord dispatches an already-built record. Each sink's delivery holds
// its own dedupe reservation, so a retry after a partial failure reaches only
// the sinks that have not persisted the record yet; sinks that already
// succeeded are never re-dispatched.
func (e *Emitter) EmitRecord(ctx context.Context, record models.AlertRecord) error {
	var firstErr error
	dispatched := 0
	for i, sink := range e.sinks {
		key := dedupeKey(record.AnomalyID, i)

		reserved, err := e.dedupe.SetNX(ctx, key, []byte("1"), e.dedupeTTL)
		if err != nil {
			// A broken dedupe store must not swallow alerts.
			e.logger.Warn("alert dedupe unavailable", slog.String("anomaly_id", record.AnomalyID), slog.Any("error", err))
			reserved = true
		}
		if !reserved {
			e.logger.Debug("alert already dispatched to sink", slog.String("anomaly_id", record.AnomalyID), slog.Int("sink", i))
			continue
		}

		if err := sink.Persist(ctx, record); err != nil {
			// Release this sink's reservation so the caller's retry reaches it.
			if delErr := e.dedupe.Del(ctx, key); delErr != nil {
				e.logger.Warn("failed to release dedupe reservation", slog.String("anomaly_id", record.AnomalyID), slog.Any("error", delErr))
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("persist alert %s: %w", record.AnomalyID, err)
			}
			continue
		}
		dispatched++
	}
	if firstErr != nil {
		return firstErr
	}

	if dispatched > 0 || len(e.sinks) == 0 {
		e.logger.Info("alert emitted",
			slog.String("anomaly_id", record.AnomalyID),
			slog.String("metric", record.StructuredData.Anomaly.MetricName),
			slog.String("severity", string(record.Severity)),
			slog.Float64("deviation", record.StructuredData.Anomaly.Deviation),
		)
	}
	return nil
}

func (e *Emitter) buildRecord(
	anomaly models.Anomaly,
	actions []string,
	system models.SystemStateSnapshot,
	efficiency models.EfficiencySnapshot,
	usage models.ResourceUsage,
) models.AlertRecord {
	now := e.now()
	id := models.AnomalyID(anomaly.MetricName, now)

	return models.AlertRecord{
		Timestamp:        now,
		AnomalyID:        id,
		Category:         "anomaly",
		Severity:         anomaly.Severity,
		Title:            fmt.Sprintf("Anomaly: %s", anomaly.MetricName),
		SuggestedActions: appendUnique(make([]string, 0, len(actions)), actions...),
		ResolutionStatus: models.StatusOpen,
		StructuredData: models.StructuredData{
			Anomaly:       anomaly,
			SystemState:   system,
			Efficiency:    efficiency,
			ResourceUsage: usage,
			Metadata: map[string]string{
				"anomaly_id": id,
				"source":     e.source,
			},
		},
	}
}

func dedupeKey(anomalyID string, sink int) string {
	return fmt.Sprintf("alerts:emitted:%s:%d", anomalyID, sink)
}
