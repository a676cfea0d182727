// File: internal/observability/diagnostics.go
package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Diagnostics is the verbose trace channel of a session. It records what the
// drivers see (navigations, element lookups, stage changes, progress text)
// without influencing control flow. Verbose output goes out at Info, otherwise
// at Debug so it is still available with a debug log level.
type Diagnostics struct {
	logger  *zap.Logger
	verbose bool
}

// NewDiagnostics returns a Diagnostics writing to logger. A nil logger is
// replaced by a no-op one.
func NewDiagnostics(logger *zap.Logger, verbose bool) *Diagnostics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Diagnostics{logger: logger.Named("diagnostics"), verbose: verbose}
}

// Verbose reports whether output is promoted to Info.
func (d *Diagnostics) Verbose() bool { return d != nil && d.verbose }

func (d *Diagnostics) level() zapcore.Level {
	if d.verbose {
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

func (d *Diagnostics) log(msg string, fields ...zap.Field) {
	if d == nil {
		return
	}
	if ce := d.logger.Check(d.level(), msg); ce != nil {
		ce.Write(fields...)
	}
}

// Navigation records a completed page load.
func (d *Diagnostics) Navigation(url string, status int) {
	d.log("Visited page", zap.String("url", url), zap.Int("status", status))
}

// Found records the outcome of an element lookup.
func (d *Diagnostics) Found(selector string, found bool) {
	if found {
		d.log("Found element", zap.String("selector", selector))
		return
	}
	d.log("Element not found", zap.String("selector", selector))
}

// TextCheck records a text assertion.
func (d *Diagnostics) TextCheck(selector, substring string, ok bool) {
	d.log("Checked element text",
		zap.String("selector", selector),
		zap.String("expected", substring),
		zap.Bool("matched", ok))
}

// Stage prints a banner such as "Step: Set up database" for a stage key.
func (d *Diagnostics) Stage(key string) {
	d.log("Step: "+StageTitle(key), zap.String("stage", key))
}

// Progress records a progress message reported by the site.
func (d *Diagnostics) Progress(message string, poll int) {
	d.log(message, zap.Int("poll", poll))
}

// Note records a free form diagnostic line.
func (d *Diagnostics) Note(msg string, fields ...zap.Field) {
	d.log(msg, fields...)
}

// StageTitle turns a stage key like "set_up_database" into "Set up database".
func StageTitle(key string) string {
	title := strings.ReplaceAll(key, "_", " ")
	if title == "" {
		return title
	}
	return strings.ToUpper(title[:1]) + title[1:]
}
