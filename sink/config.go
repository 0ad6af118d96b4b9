package sink

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/config"
)

// Source types understood by SourceConfig.
const (
	SourceStdin = "stdin"
	SourceFile  = "file"
	SourceNATS  = "nats"
)

type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Source  SourceConfig  `yaml:"source"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`

	// RecordRequests is a directory every exchange is stored under.
	RecordRequests string `yaml:"record_requests"`
}

type SourceConfig struct {
	Type string `yaml:"type"`

	// Path is read when Type is "file".
	Path string `yaml:"path"`

	// URL, Stream, Subjects and Durable are used when Type is "nats".
	// One sink instance, with its own consumer, runs per subject.
	URL      string   `yaml:"url"`
	Stream   string   `yaml:"stream"`
	Subjects []string `yaml:"subjects"`
	Durable  string   `yaml:"durable"`
}

type MetricsConfig struct {
	// Address serves /metrics when set, e.g. ":9102".
	Address string `yaml:"address"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the values used for keys a config file leaves out.
func DefaultConfig() Config {
	var result Config
	result.HTTP.Method = DefaultMethod
	result.HTTP.UserAgent = DefaultUserAgent
	result.HTTP.HTTPConnectTimeout = HTTPConnectTimeout
	result.HTTP.HTTPRequestTimeout = HTTPRequestTimeout
	result.Source.Type = SourceStdin
	result.Log.Level = "info"
	return result
}

// Validate checks the parts of the config that BuildTemplate does not.
func (c Config) Validate() error {
	switch c.Source.Type {
	case SourceStdin:
	case SourceFile:
		if c.Source.Path == "" {
			return fmt.Errorf("%w: source.path is required for a file source", ErrConfig)
		}
	case SourceNATS:
		if c.Source.URL == "" {
			return fmt.Errorf("%w: source.url is required for a nats source", ErrConfig)
		}
		if c.Source.Stream == "" {
			return fmt.Errorf("%w: source.stream is required for a nats source", ErrConfig)
		}
		if len(c.Source.Subjects) == 0 {
			return fmt.Errorf("%w: source.subjects is required for a nats source", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported source type %q", ErrConfig, c.Source.Type)
	}
	if c.HTTP.Endpoint == "" {
		return fmt.Errorf("%w: http.endpoint is required", ErrConfig)
	}
	return nil
}

type CompositeEnvVar interface {
	LookupEnv(child string) (string, bool)
}

// JSONCompositeEnvVar resolves variables from a JSON object stored in the
// Parent env var, falling back to the process environment.
type JSONCompositeEnvVar struct {
	Parent string
}

func (c JSONCompositeEnvVar) LookupEnv(child string) (string, bool) {
	if c.Parent != "" {
		s := os.Getenv(c.Parent)
		if s != "" {
			m := make(map[string]string)
			err := json.Unmarshal([]byte(s), &m)
			if err == nil {
				if v, exists := m[child]; exists {
					return v, true
				}
			}
		}
	}
	return os.LookupEnv(child)
}

type YAMLConfigUnmarshaler struct{}

// Unmarshal merges sources in order, later sources overriding earlier
// ones, on top of DefaultConfig. ${VAR} and ${VAR:default} references are
// expanded through compev.
func (u YAMLConfigUnmarshaler) Unmarshal(compev CompositeEnvVar, sources ...ConfigFile) (Config, error) {
	result := DefaultConfig()
	var options []config.YAMLOption
	for _, s := range sources {
		if s.Length > 0 {
			options = append(options, config.Source(s.Reader))
		}
	}
	options = append(options, config.Expand(compev.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	key := "record_requests"
	if yaml.Get(key).HasValue() {
		result.RecordRequests = yaml.Get(key).String()
	}
	key = "http"
	err = yaml.Get(key).Populate(&result.HTTP)
	if err != nil {
		return result, readError(key, err)
	}
	key = "source"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.Source)
		if err != nil {
			return result, readError(key, err)
		}
	}
	key = "metrics"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.Metrics)
		if err != nil {
			return result, readError(key, err)
		}
	}
	key = "log"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.Log)
		if err != nil {
			return result, readError(key, err)
		}
	}
	return result, nil
}
