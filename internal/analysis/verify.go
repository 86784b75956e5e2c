package analysis

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/firewatch-ai/firewatch/internal/alerting"
	"github.com/firewatch-ai/firewatch/internal/hotspot"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/verifier"
)

// HotspotSource lists current thermal hotspots.
type HotspotSource interface {
	FetchHotspots(ctx context.Context) ([]hotspot.RawRecord, error)
}

// Verify fetches the current hotspots, verifies them and writes the batch
// output as indented JSON to w.
func Verify(ctx context.Context, c *Components, w io.Writer) error {
	return verifyHotspots(ctx, c.FIRMS, c.Filter, c.Verifier, c.Publisher, w)
}

func verifyHotspots(ctx context.Context, src HotspotSource, filter *hotspot.Filter, v *verifier.Verifier, pub alerting.Publisher, w io.Writer) error {
	start := time.Now()

	rows, err := src.FetchHotspots(ctx)
	if err != nil {
		return err
	}
	candidates, err := filter.Apply(rows)
	if err != nil {
		return err
	}
	batch, err := v.VerifyAll(ctx, candidates)
	if err != nil {
		return err
	}

	if err := alerting.PublishVerified(ctx, pub, batch.Verified); err != nil {
		GetLogger().Warn("failed to publish verified wildfires", logger.Error(err))
	}

	GetLogger().Info("verification run complete",
		logger.Int("rows", len(rows)),
		logger.Int("candidates", len(candidates)),
		logger.Int("verified", len(batch.Verified)),
		logger.Duration("elapsed", time.Since(start)))

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(batch.Output())
}
