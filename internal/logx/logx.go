// Package logx builds the service logger: JSON to stderr with a service
// field on every record.
package logx

import (
	"os"

	"github.com/rs/zerolog"
)

func New(service string) zerolog.Logger {
	return zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", service).
		Logger()
}
