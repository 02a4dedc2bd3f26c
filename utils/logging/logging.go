package logging

import (
	"log/slog"
)

type LogCode string

const (
	// SYSTEM EVENTS (SYSTEM*)
	SYSTEM LogCode = "SYSTEM"

	// AUTH OPERATIONS (AUTH*)
	AUTH LogCode = "AUTH"

	// APP OPERATIONS (APP*)
	APP_CREATE  LogCode = "APP_CREATE"
	APP_UPDATE  LogCode = "APP_UPDATE"
	APP_EVENT   LogCode = "APP_EVENT"
	APP_INSTALL LogCode = "APP_INSTALL"

	// REVIEW OPERATIONS (REVIEW*)
	REVIEW_SUBMIT  LogCode = "REVIEW_SUBMIT"
	REVIEW_APPROVE LogCode = "REVIEW_APPROVE"
	REVIEW_REJECT  LogCode = "REVIEW_REJECT"
	REVIEW_HISTORY LogCode = "REVIEW_HISTORY"
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
