package api

import "github.com/okian/whodunit/pkg/logger"

// Option configures the Server.
type Option func(*options)

type options struct {
	logger logger.Logger
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.Named("api")
		}
	}
}
