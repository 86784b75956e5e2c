// config.go: settings struct for firewatch and the functions that load it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// EnvPrefix is prepended to every environment override, e.g. FIREWATCH_FIRMS_MAPKEY.
const EnvPrefix = "FIREWATCH"

// HotspotSettings control the alert filter applied to raw FIRMS rows.
type HotspotSettings struct {
	MinConfidence   float64 `yaml:"minconfidence"`   // rows below this thermal confidence are dropped
	MinFRP          float64 `yaml:"minfrp"`          // rows below this fire radiative power (MW) are dropped
	MalformedPolicy string  `yaml:"malformedpolicy"` // "drop" or "fail"
}

// AreaSettings is a bounding box in degrees.
type AreaSettings struct {
	West  float64 `yaml:"west"`
	South float64 `yaml:"south"`
	East  float64 `yaml:"east"`
	North float64 `yaml:"north"`
}

// FIRMSSettings configure the NASA FIRMS area CSV client.
type FIRMSSettings struct {
	Endpoint string        `yaml:"endpoint"`
	MapKey   string        `yaml:"mapkey"`
	Source   string        `yaml:"source"` // e.g. MODIS_NRT, VIIRS_SNPP_NRT
	Area     AreaSettings  `yaml:"area"`
	Days     int           `yaml:"days"` // 1..10
	CacheTTL time.Duration `yaml:"cachettl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// VerifierSettings control the hotspot decision procedure.
type VerifierSettings struct {
	ThermalConfidence  float64 `yaml:"thermalconfidence"`  // thermal-only confidence threshold
	ThermalFRP         float64 `yaml:"thermalfrp"`         // thermal-only FRP threshold
	DetectorConfidence float32 `yaml:"detectorconfidence"` // minimum detector confidence on imagery
	RadiusKm           float64 `yaml:"radiuskm"`
	Workers            int     `yaml:"workers"`
}

// DetectorSettings configure the fire/smoke YOLO model and the satellite classifier.
type DetectorSettings struct {
	ModelPath           string   `yaml:"modelpath"`
	Labels              []string `yaml:"labels"`
	InputSize           int      `yaml:"inputsize"`
	Threads             int      `yaml:"threads"`
	IoUThreshold        float32  `yaml:"iouthreshold"`
	StreamThreshold     float32  `yaml:"streamthreshold"` // whole-file and SSE detection
	FrameThreshold      float32  `yaml:"framethreshold"`  // live frame endpoint
	ClassifierModelPath string   `yaml:"classifiermodelpath"`
	ClassifierInputSize int      `yaml:"classifierinputsize"`
}

// MediaSettings locate the ffmpeg tools used for video decoding.
type MediaSettings struct {
	FfmpegPath   string        `yaml:"ffmpegpath"`
	FfprobePath  string        `yaml:"ffprobepath"`
	ProbeTimeout time.Duration `yaml:"probetimeout"`
}

// ImagerySettings configure the WMS imagery source used for visual confirmation.
type ImagerySettings struct {
	Enabled        bool          `yaml:"enabled"`
	Endpoint       string        `yaml:"endpoint"`
	Layer          string        `yaml:"layer"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	LookbackDays   int           `yaml:"lookbackdays"`
	RateLimit      float64       `yaml:"ratelimit"` // requests per second
	Burst          int           `yaml:"burst"`
	BlankThreshold float64       `yaml:"blankthreshold"` // fraction of no-data pixels that marks a tile unavailable
	Timeout        time.Duration `yaml:"timeout"`
}

// TemperatureSettings configure the surface temperature source.
type TemperatureSettings struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	CacheTTL time.Duration `yaml:"cachettl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// WebServerSettings configure the HTTP API.
type WebServerSettings struct {
	Enabled        bool     `yaml:"enabled"`
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	UploadLimit    string   `yaml:"uploadlimit"` // echo body limit, e.g. "200M"
	AllowedOrigins []string `yaml:"allowedorigins"`
	Metrics        bool     `yaml:"metrics"` // expose /metrics
}

// MQTTSettings configure alert publishing over MQTT.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

// PushSettings configure shoutrrr push notifications.
type PushSettings struct {
	Enabled bool     `yaml:"enabled"`
	URLs    []string `yaml:"urls"`
	Title   string   `yaml:"title"`
}

// SentrySettings configure optional error telemetry.
type SentrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// Settings contains all configuration options for firewatch.
type Settings struct {
	Debug bool `yaml:"debug"`

	Logging     logger.LoggingConfig `yaml:"logging"`
	Hotspots    HotspotSettings      `yaml:"hotspots"`
	FIRMS       FIRMSSettings        `yaml:"firms"`
	Verifier    VerifierSettings     `yaml:"verifier"`
	Detector    DetectorSettings     `yaml:"detector"`
	Media       MediaSettings        `yaml:"media"`
	Imagery     ImagerySettings      `yaml:"imagery"`
	Temperature TemperatureSettings  `yaml:"temperature"`
	WebServer   WebServerSettings    `yaml:"webserver"`
	MQTT        MQTTSettings         `yaml:"mqtt"`
	Push        PushSettings         `yaml:"push"`
	Sentry      SentrySettings       `yaml:"sentry"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads .env, the config file and FIREWATCH_* environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings, err := load(viper.GetViper(), DefaultConfigPaths())
	if err != nil {
		return nil, err
	}
	settingsInstance = settings
	return settingsInstance, nil
}

func load(v *viper.Viper, paths []string) (*Settings, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := initViper(v, paths); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_viper").
			Build()
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return settings, nil
}

// loadDotEnv loads ./.env when present; variables already set in the environment win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return errors.New(fmt.Errorf("error loading .env: %w", err)).
			Component("conf").
			Category(errors.CategoryFileParsing).
			FileContext(".env", 0).
			Build()
	}
	return nil
}

func initViper(v *viper.Viper, paths []string) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaultConfig(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// DefaultConfigPaths returns the directories searched for config.yaml, in order.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "firewatch"))
	}
	return append(paths, "/etc/firewatch")
}

// DefaultConfigYAML returns the annotated default configuration shipped with the binary.
func DefaultConfigYAML() ([]byte, error) {
	return fs.ReadFile(configFiles, "config.yaml")
}

// GetSettings returns the settings loaded by the last successful Load, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// ConfigFileUsed returns the config file viper read, empty when running on defaults.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
