package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"spcguard/internal/model"
)

var validate = newValidator()

type Config struct {
	LogLevel   string            `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat  string            `json:"log_format" yaml:"log_format" validate:"omitempty,oneof=json text"`
	Ingest     IngestConfig      `json:"ingest" yaml:"ingest"`
	SPC        SPCConfig         `json:"spc" yaml:"spc"`
	Parameters []ParameterConfig `json:"parameters" yaml:"parameters" validate:"unique=ID,dive"`
	API        APIConfig         `json:"api" yaml:"api"`
	Storage    StorageConfig     `json:"storage" yaml:"storage"`
	Publish    PublishConfig     `json:"publish" yaml:"publish"`
	Metrics    MetricsConfig     `json:"metrics" yaml:"metrics"`
	Alerts     AlertsConfig      `json:"alerts" yaml:"alerts"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files" validate:"required_if=Enabled true"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `json:"topic" yaml:"topic" validate:"required_if=Enabled true"`
	GroupID string   `json:"group_id" yaml:"group_id" validate:"required_if=Enabled true"`
}

type ParserConfig struct {
	Timezone           string `json:"timezone" yaml:"timezone" validate:"omitempty,timezone"`
	DefaultParameterID string `json:"default_parameter_id" yaml:"default_parameter_id"`
}

type SPCConfig struct {
	MinPoints           int           `json:"min_points" yaml:"min_points" validate:"gte=0"`
	DefaultSubgroupSize int           `json:"default_subgroup_size" yaml:"default_subgroup_size" validate:"gte=1,lte=10"`
	CpkWarning          float64       `json:"cpk_warning" yaml:"cpk_warning" validate:"gte=0"`
	CpkCritical         float64       `json:"cpk_critical" yaml:"cpk_critical" validate:"gte=0,ltefield=CpkWarning"`
	PpkLongTermSigma    bool          `json:"ppk_long_term_sigma" yaml:"ppk_long_term_sigma"`
	DedupeWindow        time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	Window              WindowConfig  `json:"window" yaml:"window"`
}

type WindowConfig struct {
	MaxPoints int           `json:"max_points" yaml:"max_points" validate:"gte=0"`
	Retention time.Duration `json:"retention" yaml:"retention"`
}

type ParameterConfig struct {
	ID           string                      `json:"id" yaml:"id" validate:"required"`
	Name         string                      `json:"name" yaml:"name"`
	Unit         string                      `json:"unit" yaml:"unit"`
	SubgroupSize int                         `json:"subgroup_size" yaml:"subgroup_size" validate:"gte=0,lte=10"`
	NonNegative  bool                        `json:"non_negative" yaml:"non_negative"`
	Spec         model.SpecLimits            `json:"spec" yaml:"spec"`
	ProductSpecs map[string]model.SpecLimits `json:"product_specs" yaml:"product_specs" validate:"dive"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver" validate:"omitempty,oneof=sqlite postgres postgresql"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type PublishConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type MetricsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
			Parser:        ParserConfig{Timezone: "UTC"},
		},
		SPC: SPCConfig{
			MinPoints:           5,
			DefaultSubgroupSize: 1,
			CpkWarning:          1.0,
			CpkCritical:         0.67,
			DedupeWindow:        10 * time.Minute,
			Window: WindowConfig{
				MaxPoints: 500,
				Retention: 30 * 24 * time.Hour,
			},
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:spcguard.db?_pragma=busy_timeout(5000)"},
		Publish: PublishConfig{Enabled: false, Topic: "spc.alerts"},
		Metrics: MetricsConfig{StoreLimit: 5000},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Metrics.StoreLimit <= 0 {
		cfg.Metrics.StoreLimit = 5000
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.SPC.DefaultSubgroupSize == 0 {
		cfg.SPC.DefaultSubgroupSize = 1
	}
	if cfg.SPC.CpkWarning <= 0 {
		cfg.SPC.CpkWarning = 1.0
	}
	if cfg.SPC.CpkCritical <= 0 {
		cfg.SPC.CpkCritical = 0.67
	}
	if cfg.Publish.Topic == "" {
		cfg.Publish.Topic = "spc.alerts"
	}
}

// Validate checks cfg and reports every problem at once, naming fields by
// their config keys.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	err := validate.Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateSpecLimits, model.SpecLimits{})
	return v
}

func validateSpecLimits(sl validator.StructLevel) {
	spec := sl.Current().Interface().(model.SpecLimits)
	if spec.LSL != nil && spec.USL != nil && *spec.LSL > *spec.USL {
		sl.ReportError(spec.LSL, "lsl", "LSL", "lsl_le_usl", fmt.Sprintf("%g", *spec.USL))
	}
}

func describe(fe validator.FieldError) string {
	path := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "required_if":
		return path + " is required when enabled"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", path, fe.Param())
	case "unique":
		return path + " has duplicate ids"
	case "ltefield":
		return path + " must not exceed cpk_warning"
	case "lsl_le_usl":
		return fmt.Sprintf("%s exceeds usl %s", path, fe.Param())
	case "timezone":
		return fmt.Sprintf("%s: unknown timezone %q", path, fe.Value())
	}
	return fmt.Sprintf("%s fails %s=%s", path, fe.Tag(), fe.Param())
}
