package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Setup installs the process-wide JSON logger. Level names are parsed
// case-insensitively; unknown values fall back to info.
func Setup(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: l,
	})
	slog.SetDefault(slog.New(handler))
}

func Fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
