// Package log provides the process-wide structured logger. It mirrors the
// teacher's pkg/util/log: a single go-kit log.Logger built once from the
// configured level and format and stored in the package-level Logger,
// which every package that logs reads directly.
package log

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the default, unconfigured logger used before InitLogger runs and
// by packages that are not yet wired to receive one explicitly.
var Logger = log.NewNopLogger()

// Format selects the on-wire encoding of log lines.
type Format string

const (
	FormatLogfmt Format = "logfmt"
	FormatJSON   Format = "json"
)

// InitLogger builds a leveled logger writing to stderr and assigns it to
// Logger. lvl is one of "debug", "info", "warn", "error".
func InitLogger(lvl string, format Format) log.Logger {
	var logger log.Logger
	if format == FormatJSON {
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var option level.Option
	switch lvl {
	case "debug":
		option = level.AllowDebug()
	case "warn":
		option = level.AllowWarn()
	case "error":
		option = level.AllowError()
	default:
		option = level.AllowInfo()
	}
	logger = level.NewFilter(logger, option)

	Logger = logger
	return logger
}
