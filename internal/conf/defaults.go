// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with callers that construct components without a config file.
const (
	DefaultMinConfidence      = 50.0
	DefaultMinFRP             = 5.0
	DefaultThermalConfidence  = 80.0
	DefaultThermalFRP         = 20.0
	DefaultDetectorConfidence = 0.2
	DefaultStreamThreshold    = 0.4
	DefaultFrameThreshold     = 0.15
	DefaultFIRMSEndpoint      = "https://firms.modaps.eosdis.nasa.gov"
	DefaultImageryEndpoint    = "https://gibs.earthdata.nasa.gov/wms/epsg4326/best/wms.cgi"
	DefaultTemperatureURL     = "https://api.open-meteo.com/v1/forecast"
)

// setDefaultConfig registers every key so environment overrides resolve during Unmarshal.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/firewatch.log")
	v.SetDefault("logging.file_output.level", "debug")
	v.SetDefault("logging.module_levels", map[string]string{})

	v.SetDefault("hotspots.minconfidence", DefaultMinConfidence)
	v.SetDefault("hotspots.minfrp", DefaultMinFRP)
	v.SetDefault("hotspots.malformedpolicy", "drop")

	v.SetDefault("firms.endpoint", DefaultFIRMSEndpoint)
	v.SetDefault("firms.mapkey", "")
	v.SetDefault("firms.source", "MODIS_NRT")
	v.SetDefault("firms.area.west", -125.0)
	v.SetDefault("firms.area.south", 32.0)
	v.SetDefault("firms.area.east", -114.0)
	v.SetDefault("firms.area.north", 42.0)
	v.SetDefault("firms.days", 1)
	v.SetDefault("firms.cachettl", 15*time.Minute)
	v.SetDefault("firms.timeout", 30*time.Second)

	v.SetDefault("verifier.thermalconfidence", DefaultThermalConfidence)
	v.SetDefault("verifier.thermalfrp", DefaultThermalFRP)
	v.SetDefault("verifier.detectorconfidence", DefaultDetectorConfidence)
	v.SetDefault("verifier.radiuskm", 2.0)
	v.SetDefault("verifier.workers", 4)

	v.SetDefault("detector.modelpath", "models/fire_smoke.tflite")
	v.SetDefault("detector.labels", []string{"fire", "smoke"})
	v.SetDefault("detector.inputsize", 640)
	v.SetDefault("detector.threads", 0)
	v.SetDefault("detector.iouthreshold", 0.45)
	v.SetDefault("detector.streamthreshold", DefaultStreamThreshold)
	v.SetDefault("detector.framethreshold", DefaultFrameThreshold)
	v.SetDefault("detector.classifiermodelpath", "")
	v.SetDefault("detector.classifierinputsize", 224)

	v.SetDefault("media.ffmpegpath", "ffmpeg")
	v.SetDefault("media.ffprobepath", "ffprobe")
	v.SetDefault("media.probetimeout", 15*time.Second)

	v.SetDefault("imagery.enabled", true)
	v.SetDefault("imagery.endpoint", DefaultImageryEndpoint)
	v.SetDefault("imagery.layer", "MODIS_Terra_CorrectedReflectance_TrueColor")
	v.SetDefault("imagery.width", 512)
	v.SetDefault("imagery.height", 512)
	v.SetDefault("imagery.lookbackdays", 1)
	v.SetDefault("imagery.ratelimit", 2.0)
	v.SetDefault("imagery.burst", 4)
	v.SetDefault("imagery.blankthreshold", 0.9)
	v.SetDefault("imagery.timeout", 30*time.Second)

	v.SetDefault("temperature.enabled", true)
	v.SetDefault("temperature.endpoint", DefaultTemperatureURL)
	v.SetDefault("temperature.cachettl", 30*time.Minute)
	v.SetDefault("temperature.timeout", 10*time.Second)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.host", "")
	v.SetDefault("webserver.port", "8000")
	v.SetDefault("webserver.uploadlimit", "200M")
	v.SetDefault("webserver.allowedorigins", []string{"*"})
	v.SetDefault("webserver.metrics", true)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "firewatch")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("push.enabled", false)
	v.SetDefault("push.urls", []string{})
	v.SetDefault("push.title", "Firewatch alert")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
}
