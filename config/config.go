// Package config loads and validates benchcorr settings from flags, the
// environment and an optional config file.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BENCHCORR_MONITOR_LOG.
const EnvPrefix = "BENCHCORR"

// ErrInvalid is returned when the configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Defaults.
const (
	DefaultRepetitions = 1
	DefaultContainers  = 2
	DefaultMode        = "summary"
	DefaultFormat      = "csv"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// Config holds every recognised option. Keys match the CLI flag names.
type Config struct {
	Channel     string   `mapstructure:"channel" validate:"required"`
	MonitorLog  string   `mapstructure:"monitor-log" validate:"required"`
	ExecLog     string   `mapstructure:"exec-log" validate:"required_if=Gas true"`
	Repetitions int      `mapstructure:"repetitions" validate:"min=1"`
	Containers  int      `mapstructure:"containers" validate:"min=0"`
	Gas         bool     `mapstructure:"gas"`
	Roles       []string `mapstructure:"roles"`
	Methods     []string `mapstructure:"methods"`
	Mode        string   `mapstructure:"mode" validate:"oneof=runs summary both"`
	Format      string   `mapstructure:"format" validate:"oneof=csv table json"`
	Output      string   `mapstructure:"output"`
	Progress    bool     `mapstructure:"progress"`
	LogLevel    string   `mapstructure:"log-level" validate:"oneof=debug info warn error"`
	LogFormat   string   `mapstructure:"log-format" validate:"oneof=text json"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})

	return v
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("repetitions", DefaultRepetitions)
	v.SetDefault("containers", DefaultContainers)
	v.SetDefault("gas", true)
	v.SetDefault("mode", DefaultMode)
	v.SetDefault("format", DefaultFormat)
	v.SetDefault("log-level", DefaultLogLevel)
	v.SetDefault("log-format", DefaultLogFormat)
}

// NewViper layers the configuration sources. Explicitly set flags win over
// BENCHCORR_* environment variables, which win over configFile (when set),
// which wins over flag defaults and SetDefaults.
func NewViper(configFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks required paths, counts and enumerations.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}

	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_if":
		return fe.Field() + " is required when gas statistics are requested"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag())
	}
}
