package sink

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger from the log section of the config.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid log level %q", ErrConfig, c.Level)
		}
		zc.Level = level
	}
	return zc.Build()
}
