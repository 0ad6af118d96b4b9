package sink

import "fmt"

// Parameter maps one record field onto one query-string entry.
type Parameter struct {
	// RecordKey is the top-level field looked up in each record.
	RecordKey string `yaml:"record_key"`
	// URLKey is the query parameter name; RecordKey is used when it is empty.
	URLKey string `yaml:"url_key"`
	Prefix string `yaml:"prefix"`
	Suffix string `yaml:"suffix"`
}

// QueryKey returns the name of the query parameter this Parameter emits.
func (p Parameter) QueryKey() string {
	if p.URLKey != "" {
		return p.URLKey
	}
	return p.RecordKey
}

// Decorate wraps an extracted value with the configured prefix and suffix.
func (p Parameter) Decorate(value string) string {
	return p.Prefix + value + p.Suffix
}

func (p Parameter) validate() error {
	if p.RecordKey == "" {
		return fmt.Errorf("%w: url parameter is missing record_key", ErrConfig)
	}
	return nil
}

func validateParameters(params []Parameter) error {
	for i, p := range params {
		if err := p.validate(); err != nil {
			return fmt.Errorf("url_parameters[%d] %w", i, err)
		}
	}
	return nil
}
