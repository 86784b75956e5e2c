package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/firewatch-ai/firewatch/internal/alerting"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// VerifiedHotspots handles GET /api/v1/hotspots/verified: it fetches the
// current thermal hotspots, keeps the strong ones, verifies them against
// imagery and publishes the confirmed wildfires.
func (c *Controller) VerifiedHotspots(ctx echo.Context) error {
	if c.Hotspots == nil || c.Filter == nil || c.Verifier == nil {
		return c.unavailable(ctx, "hotspot verification")
	}
	reqCtx := ctx.Request().Context()

	rows, err := c.Hotspots.FetchHotspots(reqCtx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch hotspots", statusFor(err))
	}
	candidates, err := c.Filter.Apply(rows)
	if err != nil {
		// a malformed upstream feed is the upstream's fault, not the caller's
		return c.HandleError(ctx, err, "Malformed hotspot feed", http.StatusBadGateway)
	}

	batch, err := c.Verifier.VerifyAll(reqCtx, candidates)
	if err != nil {
		return c.HandleError(ctx, err, "Verification failed", statusFor(err))
	}

	if err := alerting.PublishVerified(reqCtx, c.Publisher, batch.Verified); err != nil {
		c.log.Warn("failed to publish verified wildfires",
			logger.Int("verified", len(batch.Verified)),
			logger.Error(err))
	}

	return ctx.JSON(http.StatusOK, batch.Output())
}

// AnalyzeHotspot handles GET /api/v1/hotspots/analyze?lat=..&lon=..[&date=YYYY-MM-DD].
func (c *Controller) AnalyzeHotspot(ctx echo.Context) error {
	if c.Analyzer == nil {
		return c.unavailable(ctx, "location analysis")
	}

	lat, err := floatParam(ctx, "lat")
	if err != nil {
		return c.HandleError(ctx, err, "Invalid latitude", http.StatusBadRequest)
	}
	lon, err := floatParam(ctx, "lon")
	if err != nil {
		return c.HandleError(ctx, err, "Invalid longitude", http.StatusBadRequest)
	}

	day := c.now().UTC()
	if s := ctx.QueryParam("date"); s != "" {
		day, err = time.Parse(time.DateOnly, s)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		}
	}

	analysis, err := c.Analyzer.Analyze(ctx.Request().Context(), lat, lon, day)
	if err != nil {
		return c.HandleError(ctx, err, "Analysis failed", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, analysis)
}

func floatParam(ctx echo.Context, name string) (float64, error) {
	s := ctx.QueryParam(name)
	if s == "" {
		return 0, errors.Newf("missing %s parameter", name).
			Component("api").
			Category(errors.CategoryInput).
			Build()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New(err).
			Component("api").
			Category(errors.CategoryInput).
			Context("parameter", name).
			Build()
	}
	return f, nil
}
