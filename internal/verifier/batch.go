package verifier

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/hotspot"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

// Stats aggregates the outcome of a batch over its full input.
type Stats struct {
	TotalHotspots    int     `json:"total_hotspots"`
	VerifiedCount    int     `json:"verified_fires"`
	FalseAlarmCount  int     `json:"false_alarms_rejected"`
	UnverifiedCount  int     `json:"unverified"`
	VerificationRate float64 `json:"verification_rate"` // percent
}

// NewStats computes the aggregate counts. The rate is 0 for an empty batch.
func NewStats(total, verified, falseAlarms, unverified int) Stats {
	s := Stats{
		TotalHotspots:   total,
		VerifiedCount:   verified,
		FalseAlarmCount: falseAlarms,
		UnverifiedCount: unverified,
	}
	if total > 0 {
		s.VerificationRate = float64(verified) / float64(total) * 100
	}
	return s
}

// Batch is the partition of a verified hotspot list. Every input record
// appears in exactly one of the three sets, in input order.
type Batch struct {
	Verified    []hotspot.Record
	FalseAlarms []hotspot.Record
	Unverified  []hotspot.Record
	Stats       Stats
}

// Output is the wire shape of a verification batch.
type Output struct {
	Count               int              `json:"count"`
	Alerts              []hotspot.Record `json:"alerts"`
	UnverifiedAlerts    []hotspot.Record `json:"unverified_alerts"`
	FalseAlarms         []hotspot.Record `json:"false_alarms"`
	VerificationStats   Stats            `json:"verification_stats"`
	FalseAlarmsRejected int              `json:"false_alarms_rejected"`
	UnverifiedCount     int              `json:"unverified_count"`
}

// Output returns the wire representation of the batch. Empty sets are
// rendered as empty arrays, never null.
func (b *Batch) Output() Output {
	return Output{
		Count:               len(b.Verified),
		Alerts:              nonNil(b.Verified),
		UnverifiedAlerts:    nonNil(b.Unverified),
		FalseAlarms:         nonNil(b.FalseAlarms),
		VerificationStats:   b.Stats,
		FalseAlarmsRejected: len(b.FalseAlarms),
		UnverifiedCount:     len(b.Unverified),
	}
}

func nonNil(recs []hotspot.Record) []hotspot.Record {
	if recs == nil {
		return []hotspot.Record{}
	}
	return recs
}

// Partition routes verified records by status. Records without a result
// and any status other than verified or rejected land in Unverified.
func Partition(recs []hotspot.Record) *Batch {
	b := &Batch{}
	for _, rec := range recs {
		var status hotspot.Status
		if rec.Verification != nil {
			status = rec.Verification.Status
		}
		switch status {
		case hotspot.StatusVerifiedWildfire:
			b.Verified = append(b.Verified, rec)
		case hotspot.StatusFalseAlarmRejected:
			b.FalseAlarms = append(b.FalseAlarms, rec)
		default:
			b.Unverified = append(b.Unverified, rec)
		}
	}
	b.Stats = NewStats(len(recs), len(b.Verified), len(b.FalseAlarms), len(b.Unverified))
	return b
}

// VerifyAll runs Verify for every record with at most the configured number
// of workers in flight and partitions the results. Individual hotspots never
// fail the batch; only cancellation of ctx does.
func (v *Verifier) VerifyAll(ctx context.Context, recs []hotspot.Record) (*Batch, error) {
	start := time.Now()
	results := make([]hotspot.Record, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, rec := range recs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = v.Verify(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		if v.metrics != nil {
			v.metrics.RecordOperation(metrics.OpBatch, metrics.StatusError)
		}
		return nil, errors.New(err).
			Component("verifier").
			Category(errors.CategoryCancellation).
			Context("hotspots", len(recs)).
			Build()
	}

	batch := Partition(results)
	elapsed := time.Since(start)
	if v.metrics != nil {
		v.metrics.RecordOperation(metrics.OpBatch, metrics.StatusSuccess)
		v.metrics.RecordDuration(metrics.OpBatch, elapsed.Seconds())
		v.metrics.RecordBatch(len(recs), batch.Stats.VerificationRate)
	}
	v.log.Info("hotspot batch verified",
		logger.Int("total", batch.Stats.TotalHotspots),
		logger.Int("verified", batch.Stats.VerifiedCount),
		logger.Int("false_alarms", batch.Stats.FalseAlarmCount),
		logger.Int("unverified", batch.Stats.UnverifiedCount),
		logger.Float64("verification_rate", batch.Stats.VerificationRate),
		logger.Duration("elapsed", elapsed))
	return batch, nil
}
