package conf

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const maskedSecret = "********"

// RenderYAML marshals the effective settings with credentials masked.
func RenderYAML(settings *Settings) ([]byte, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings are nil")
	}
	masked := *settings
	masked.FIRMS.MapKey = mask(masked.FIRMS.MapKey)
	masked.MQTT.Password = mask(masked.MQTT.Password)
	masked.Sentry.DSN = mask(masked.Sentry.DSN)
	if len(masked.Push.URLs) > 0 {
		urls := make([]string, len(masked.Push.URLs))
		for i := range urls {
			urls[i] = maskedSecret
		}
		masked.Push.URLs = urls
	}

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return out, nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return maskedSecret
}
