package api

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/firewatch-ai/firewatch/internal/alerting"
	"github.com/firewatch-ai/firewatch/internal/detector"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/stream"
)

// DetectionsResponse is the body of the whole-file detection endpoint.
type DetectionsResponse struct {
	Detections []detector.Detection `json:"detections"`
}

// DetectFireSmoke handles POST /api/v1/detect/fire-smoke: it runs the
// detector over every frame of the uploaded image or video and returns all
// detections at once.
func (c *Controller) DetectFireSmoke(ctx echo.Context) error {
	if c.Streamer == nil {
		return c.unavailable(ctx, "fire/smoke detection")
	}

	up, err := c.stageUpload(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid upload", uploadStatus(err))
	}
	defer up.Remove()

	dets, err := c.Streamer.DetectAll(ctx.Request().Context(), up.Path, c.streamThreshold())
	if err != nil {
		return c.HandleError(ctx, err, "Detection failed", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, DetectionsResponse{Detections: dets})
}

// StreamFireSmoke handles POST /api/v1/detect/fire-smoke/stream: one
// server-sent event per frame, then a done or error event. Errors after the
// first byte is written can only be reported in-band.
func (c *Controller) StreamFireSmoke(ctx echo.Context) error {
	if c.Streamer == nil {
		return c.unavailable(ctx, "fire/smoke detection")
	}

	up, err := c.stageUpload(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid upload", uploadStatus(err))
	}
	defer up.Remove()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	w := stream.NewWriter(res, stream.SSE)
	if c.Metrics != nil && c.Metrics.HTTP != nil {
		c.Metrics.HTTP.SSEConnected()
		defer c.Metrics.HTTP.SSEDisconnected()
		w.OnEvent(c.Metrics.HTTP.RecordSSEMessage)
	}

	reqCtx := ctx.Request().Context()
	seq := alerting.Watch(reqCtx, c.Streamer.Stream(reqCtx, up.Path, c.streamThreshold()), c.Publisher, up.Filename)
	if err := stream.Pump(seq, w); err != nil {
		// the client went away; nothing more can be sent
		c.log.Debug("detection stream aborted",
			logger.String("file", up.Filename),
			logger.Error(err))
	}
	return nil
}

// FrameRequest is a single live camera frame, base64 encoded, optionally as
// a data URL.
type FrameRequest struct {
	Frame string `json:"frame"`
}

// FrameResponse is the result of the live frame endpoint.
type FrameResponse struct {
	Detections []detector.Detection `json:"detections"`
	HasFire    bool                 `json:"has_fire"`
	Timestamp  string               `json:"timestamp"`
	FrameSize  [2]int               `json:"frame_size"` // height, width
	DebugInfo  FrameDebugInfo       `json:"debug_info"`
}

// FrameDebugInfo echoes the parameters the frame was scored with.
type FrameDebugInfo struct {
	ConfidenceThreshold float32 `json:"confidence_threshold"`
	TotalBoxesChecked   int     `json:"total_boxes_checked"`
}

// frameError is the error shape of the frame endpoint; live camera clients
// keep reading detections from it.
type frameError struct {
	Error      string               `json:"error"`
	Detections []detector.Detection `json:"detections"`
	HasFire    bool                 `json:"has_fire"`
}

// DetectFrame handles POST /api/v1/detect/frame with a low threshold for
// live camera use.
func (c *Controller) DetectFrame(ctx echo.Context) error {
	if c.Detector == nil {
		return c.unavailable(ctx, "fire/smoke detection")
	}

	var req FrameRequest
	if err := ctx.Bind(&req); err != nil {
		return c.frameFailure(ctx, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
	}
	data, err := decodeFrame(req.Frame)
	if err != nil {
		return c.frameFailure(ctx, err, http.StatusBadRequest)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return c.frameFailure(ctx, fmt.Errorf("cannot decode frame: %w", err), http.StatusBadRequest)
	}

	threshold := c.frameThreshold()
	dets, err := c.Detector.Detect(ctx.Request().Context(), data, threshold)
	if err != nil {
		return c.frameFailure(ctx, err, statusFor(err))
	}
	if dets == nil {
		dets = []detector.Detection{}
	}

	return ctx.JSON(http.StatusOK, FrameResponse{
		Detections: dets,
		HasFire:    len(dets) > 0,
		Timestamp:  c.now().Format(time.RFC3339Nano),
		FrameSize:  [2]int{cfg.Height, cfg.Width},
		DebugInfo: FrameDebugInfo{
			ConfidenceThreshold: threshold,
			TotalBoxesChecked:   len(dets),
		},
	})
}

func (c *Controller) frameFailure(ctx echo.Context, err error, code int) error {
	c.log.Warn("frame detection failed",
		logger.Int("code", code),
		logger.Error(err))
	return ctx.JSON(code, frameError{
		Error:      err.Error(),
		Detections: []detector.Detection{},
	})
}

// decodeFrame accepts raw base64 or a data URL such as
// "data:image/jpeg;base64,...".
func decodeFrame(frame string) ([]byte, error) {
	frame = strings.TrimSpace(frame)
	if frame == "" {
		return nil, errors.Newf("no frame data provided").
			Component("api").
			Category(errors.CategoryInput).
			Build()
	}
	if strings.HasPrefix(frame, "data:") {
		_, payload, ok := strings.Cut(frame, ",")
		if !ok {
			return nil, errors.Newf("malformed data URL").
				Component("api").
				Category(errors.CategoryInput).
				Build()
		}
		frame = payload
	}

	data, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(frame, "="))
	}
	if err != nil {
		return nil, errors.New(fmt.Errorf("invalid base64 frame: %w", err)).
			Component("api").
			Category(errors.CategoryInput).
			Build()
	}
	return data, nil
}

// DetectSatelliteFire handles POST /api/v1/detect/satellite-fire.
func (c *Controller) DetectSatelliteFire(ctx echo.Context) error {
	if c.Classifier == nil {
		return c.unavailable(ctx, "satellite classification")
	}

	data, err := readUpload(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid upload", statusFor(err))
	}
	result, err := c.Classifier.Classify(ctx.Request().Context(), data)
	if err != nil {
		return c.HandleError(ctx, err, "Classification failed", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, result)
}
