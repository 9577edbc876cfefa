// Package noplog provides the silent default logger shared by packages
// that accept an optional *slog.Logger.
package noplog

import (
	"context"
	"log/slog"
)

// handler discards all records. Enabled returns false so callers skip
// message formatting entirely.
type handler struct{}

func (handler) Enabled(context.Context, slog.Level) bool  { return false }
func (handler) Handle(context.Context, slog.Record) error { return nil }
func (handler) WithAttrs([]slog.Attr) slog.Handler        { return handler{} }
func (handler) WithGroup(string) slog.Handler             { return handler{} }

// New returns a logger that silently discards all output.
func New() *slog.Logger { return slog.New(handler{}) }
