package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

type LogCode string

const (
	// SYSTEM EVENTS
	SYSTEM LogCode = "SYSTEM"

	// DATA OPERATIONS
	TEMPLATE_SAVE      LogCode = "TEMPLATE_SAVE"
	MEASUREMENT_SAVE   LogCode = "MEASUREMENT_SAVE"
	MEASUREMENT_RANGE  LogCode = "MEASUREMENT_RANGE"
	STATISTICS_COMPUTE LogCode = "STATISTICS_COMPUTE"

	// AUTH
	AUTH_LOGIN LogCode = "AUTH_LOGIN"
)

// VictoriaLogs has fixed field name for time (_time) and message(_msg). This function maps fields msg -> _msg and time -> _time.
func convertKeysToVictoriaLogs(keys []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func GetVictoriaLogsOptions(addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: convertKeysToVictoriaLogs,
		AddSource:   addSource,
	}
}

// InitLogging sends every record as JSON to logFile and as text to stderr,
// the latter filtered by level.
func InitLogging(logFile io.Writer, level slog.Level) {
	var jsonHandler slog.Handler = slog.NewJSONHandler(logFile, GetVictoriaLogsOptions(true))

	// these fields will be used for filtering logs
	jsonHandler = jsonHandler.WithAttrs([]slog.Attr{
		slog.String("service_type", "measure_tracker"),
	})
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	logger := slog.New(slogmulti.Fanout(jsonHandler, textHandler))
	slog.SetDefault(logger)
}
