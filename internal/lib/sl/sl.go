// Package sl содержит вспомогательные функции для работы с логгером slog:
// единообразный вывод ошибок, выбор обработчика по окружению и адаптер
// логгера для планировщика cron.
package sl

import (
	"io"
	"log/slog"
	"os"

	"github.com/robfig/cron/v3"
)

// Окружения, от которых зависит формат логов.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// SetupLogger создает логгер для окружения env и пишет его в stdout.
func SetupLogger(env string) *slog.Logger {
	return NewLogger(env, os.Stdout)
}

// NewLogger создает логгер для окружения env: текстовый для локального запуска,
// JSON для dev и prod. В prod уровень Info, в остальных Debug.
func NewLogger(env string, w io.Writer) *slog.Logger {
	switch env {
	case EnvProd:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	case EnvDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

type cronLogger struct {
	log *slog.Logger
}

// NewCronLogger оборачивает slog.Logger в cron.Logger.
// Служебные сообщения cron пишутся на уровне Debug, ошибки на уровне Error.
func NewCronLogger(log *slog.Logger) cron.Logger {
	return cronLogger{log: log}
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{Err(err)}, keysAndValues...)...)
}
