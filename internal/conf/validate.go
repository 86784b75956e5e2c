// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and reports every problem at once
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) []string{
		validateHotspotSettings,
		validateFIRMSSettings,
		validateVerifierSettings,
		validateDetectorSettings,
		validateImagerySettings,
		validateWebServerSettings,
		validateMQTTSettings,
		validatePushSettings,
		validateSentrySettings,
	} {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateHotspotSettings(s *Settings) []string {
	var errs []string
	h := s.Hotspots
	if h.MinConfidence < 0 || h.MinConfidence > 100 {
		errs = append(errs, fmt.Sprintf("hotspots.minconfidence must be between 0 and 100, got %g", h.MinConfidence))
	}
	if h.MinFRP < 0 {
		errs = append(errs, fmt.Sprintf("hotspots.minfrp must be non-negative, got %g", h.MinFRP))
	}
	switch strings.ToLower(h.MalformedPolicy) {
	case "", "drop", "fail":
	default:
		errs = append(errs, fmt.Sprintf("hotspots.malformedpolicy must be drop or fail, got %q", h.MalformedPolicy))
	}
	return errs
}

func validateFIRMSSettings(s *Settings) []string {
	var errs []string
	f := s.FIRMS
	if f.Days < 1 || f.Days > 10 {
		errs = append(errs, fmt.Sprintf("firms.days must be between 1 and 10, got %d", f.Days))
	}
	a := f.Area
	if a.West < -180 || a.East > 180 || a.West >= a.East {
		errs = append(errs, fmt.Sprintf("firms.area west/east must satisfy -180 <= west < east <= 180, got %g/%g", a.West, a.East))
	}
	if a.South < -90 || a.North > 90 || a.South >= a.North {
		errs = append(errs, fmt.Sprintf("firms.area south/north must satisfy -90 <= south < north <= 90, got %g/%g", a.South, a.North))
	}
	if f.Source == "" {
		errs = append(errs, "firms.source must not be empty")
	}
	if err := validateHTTPURL(f.Endpoint); err != nil {
		errs = append(errs, "firms.endpoint "+err.Error())
	}
	return errs
}

func validateVerifierSettings(s *Settings) []string {
	var errs []string
	v := s.Verifier
	if v.ThermalConfidence < 0 || v.ThermalConfidence > 100 {
		errs = append(errs, fmt.Sprintf("verifier.thermalconfidence must be between 0 and 100, got %g", v.ThermalConfidence))
	}
	if v.ThermalFRP < 0 {
		errs = append(errs, fmt.Sprintf("verifier.thermalfrp must be non-negative, got %g", v.ThermalFRP))
	}
	if v.DetectorConfidence < 0 || v.DetectorConfidence > 1 {
		errs = append(errs, fmt.Sprintf("verifier.detectorconfidence must be between 0 and 1, got %g", v.DetectorConfidence))
	}
	if v.RadiusKm <= 0 {
		errs = append(errs, fmt.Sprintf("verifier.radiuskm must be positive, got %g", v.RadiusKm))
	}
	if v.Workers < 1 {
		errs = append(errs, fmt.Sprintf("verifier.workers must be at least 1, got %d", v.Workers))
	}
	return errs
}

func validateDetectorSettings(s *Settings) []string {
	var errs []string
	d := s.Detector
	if d.InputSize <= 0 {
		errs = append(errs, fmt.Sprintf("detector.inputsize must be positive, got %d", d.InputSize))
	}
	if d.ClassifierInputSize <= 0 {
		errs = append(errs, fmt.Sprintf("detector.classifierinputsize must be positive, got %d", d.ClassifierInputSize))
	}
	if d.Threads < 0 {
		errs = append(errs, fmt.Sprintf("detector.threads must be non-negative, got %d", d.Threads))
	}
	for name, value := range map[string]float32{
		"iouthreshold":    d.IoUThreshold,
		"streamthreshold": d.StreamThreshold,
		"framethreshold":  d.FrameThreshold,
	} {
		if value < 0 || value > 1 {
			errs = append(errs, fmt.Sprintf("detector.%s must be between 0 and 1, got %g", name, value))
		}
	}
	if len(d.Labels) == 0 {
		errs = append(errs, "detector.labels must name at least one class")
	}
	return errs
}

func validateImagerySettings(s *Settings) []string {
	if !s.Imagery.Enabled {
		return nil
	}
	var errs []string
	i := s.Imagery
	if err := validateHTTPURL(i.Endpoint); err != nil {
		errs = append(errs, "imagery.endpoint "+err.Error())
	}
	if i.Width <= 0 || i.Height <= 0 {
		errs = append(errs, fmt.Sprintf("imagery.width and imagery.height must be positive, got %dx%d", i.Width, i.Height))
	}
	if i.RateLimit <= 0 {
		errs = append(errs, fmt.Sprintf("imagery.ratelimit must be positive, got %g", i.RateLimit))
	}
	if i.BlankThreshold <= 0 || i.BlankThreshold > 1 {
		errs = append(errs, fmt.Sprintf("imagery.blankthreshold must be in (0, 1], got %g", i.BlankThreshold))
	}
	return errs
}

func validateWebServerSettings(s *Settings) []string {
	if !s.WebServer.Enabled {
		return nil
	}
	port, err := strconv.Atoi(s.WebServer.Port)
	if err != nil || port < 1 || port > 65535 {
		return []string{fmt.Sprintf("webserver.port must be a number between 1 and 65535, got %q", s.WebServer.Port)}
	}
	return nil
}

func validateMQTTSettings(s *Settings) []string {
	if !s.MQTT.Enabled {
		return nil
	}
	var errs []string
	if s.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when MQTT is enabled")
	} else if u, err := url.Parse(s.MQTT.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker must look like tcp://host:port, got %q", s.MQTT.Broker))
	}
	if s.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required when MQTT is enabled")
	}
	if s.MQTT.QoS > 2 {
		errs = append(errs, fmt.Sprintf("mqtt.qos must be 0, 1 or 2, got %d", s.MQTT.QoS))
	}
	return errs
}

func validatePushSettings(s *Settings) []string {
	if s.Push.Enabled && len(s.Push.URLs) == 0 {
		return []string{"push.urls must contain at least one service URL when push is enabled"}
	}
	return nil
}

func validateSentrySettings(s *Settings) []string {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return []string{"sentry.dsn is required when sentry is enabled"}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL, got %q", raw)
	}
	return nil
}
