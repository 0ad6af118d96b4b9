package sink

import (
	"fmt"
)

// configOptions holds optional configuration for LoadConfig.
type configOptions struct {
	compositeEnvVar CompositeEnvVar
}

// ConfigOption is a functional option for configuring LoadConfig.
type ConfigOption func(*configOptions)

// ConfigWithJSONEnvVar resolves ${VAR} references from the JSON object held
// in the parent env var before falling back to the process environment.
func ConfigWithJSONEnvVar(parent string) ConfigOption {
	return func(o *configOptions) {
		o.compositeEnvVar = JSONCompositeEnvVar{Parent: parent}
	}
}

// ConfigWithEnvVar sets the lookup used to expand ${VAR} references.
func ConfigWithEnvVar(compev CompositeEnvVar) ConfigOption {
	return func(o *configOptions) {
		o.compositeEnvVar = compev
	}
}

// LoadConfig reads the named files, merges them in order, and validates
// the result.
func LoadConfig(paths []string, opts ...ConfigOption) (Config, error) {
	options := configOptions{compositeEnvVar: JSONCompositeEnvVar{}}
	for _, opt := range opts {
		opt(&options)
	}

	var result Config
	if len(paths) == 0 {
		return result, fmt.Errorf("%w: no config file given", ErrConfig)
	}
	files := make([]ConfigFile, 0, len(paths))
	for _, p := range paths {
		f, err := ReadConfigFile(p)
		if err != nil {
			return result, err
		}
		files = append(files, f)
	}

	result, err := YAMLConfigUnmarshaler{}.Unmarshal(options.compositeEnvVar, files...)
	if err != nil {
		return result, fmt.Errorf("failed to load config %w", err)
	}
	if err = result.Validate(); err != nil {
		return result, err
	}
	return result, nil
}
