// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"golang.org/x/time/rate"

	"github.com/jeranaias/davsh/internal/styles"
)

// =============================================================================
// CALLBACK PROTOCOL
// =============================================================================

// Status is the first argument of a progress callback.
type Status int

const (
	// Failure ends a transfer unsuccessfully.
	Failure Status = 0
	// Success ends a transfer successfully.
	Success Status = 1
	// InProgress reports one chunk of an ongoing transfer.
	InProgress Status = -1
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case InProgress:
		return "progress"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Func is invoked synchronously by a transfer once per chunk and exactly
// once more with Success or Failure when the transfer ends. soFar grows
// monotonically within one transfer; total is <= 0 when unknown.
type Func func(status Status, message, url string, soFar, total int64, chunk []byte)

// =============================================================================
// REPORTER
// =============================================================================

const (
	defaultWidth    = 72
	defaultBarWidth = 30
	defaultInterval = 100 * time.Millisecond
)

// Reporter turns callback invocations into a header line, a redrawn
// progress line and a final status line.
type Reporter struct {
	out      io.Writer
	bar      progress.Model
	limiter  *rate.Limiter
	width    int
	showBars bool

	// inTransfer counts progress lines drawn for the current transfer.
	// Zero means the next line starts at column 0.
	inTransfer int
	current    string
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithBars enables or disables the redrawn progress line.
func WithBars(enabled bool) Option {
	return func(r *Reporter) { r.showBars = enabled }
}

// WithWidth sets the display width used to truncate URLs.
func WithWidth(width int) Option {
	return func(r *Reporter) {
		if width > 0 {
			r.width = width
		}
	}
}

// WithInterval sets the minimum time between two redraws. Zero redraws
// on every chunk.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		r.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// New creates a Reporter writing to out.
func New(out io.Writer, opts ...Option) *Reporter {
	r := &Reporter{
		out:      out,
		width:    defaultWidth,
		showBars: true,
		limiter:  rate.NewLimiter(rate.Every(defaultInterval), 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.bar = progress.New(
		progress.WithGradient(styles.GradientStart, styles.GradientEnd),
		progress.WithWidth(defaultBarWidth),
		progress.WithoutPercentage(),
		progress.WithColorProfile(styles.ColorProfile()),
	)
	return r
}

// Func returns the reporter's callback.
func (r *Reporter) Func() Func {
	return r.Report
}

// InTransfer reports whether a progress line is currently open.
func (r *Reporter) InTransfer() bool {
	return r.inTransfer > 0
}

// Report handles one callback invocation. It never blocks on anything
// but the output writer and never panics.
func (r *Reporter) Report(status Status, message, url string, soFar, total int64, chunk []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Debug("progress callback recovered", "panic", rec, "url", url)
		}
	}()

	switch status {
	case InProgress:
		r.progress(url, soFar, total)
	case Success:
		r.finish(styles.SuccessStyle, message, url)
	default:
		r.finish(styles.ErrorStyle, message, url)
	}
}

func (r *Reporter) progress(url string, soFar, total int64) {
	if !r.showBars {
		return
	}

	if r.inTransfer > 0 && url != r.current {
		// a new transfer began without the old one reporting its end
		fmt.Fprintln(r.out)
		r.inTransfer = 0
	}

	first := r.inTransfer == 0
	if first {
		r.current = url
		fmt.Fprintf(r.out, "Transferring %s:\n", r.truncate(url))
	}

	done := total > 0 && soFar >= total
	if !first && !done && !r.limiter.Allow() {
		r.inTransfer++
		return
	}

	fmt.Fprintf(r.out, "\r  %s", r.line(soFar, total))
	r.inTransfer++
}

func (r *Reporter) line(soFar, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("%s transferred", humanize.Bytes(uint64(soFar)))
	}
	pct := float64(soFar) / float64(total)
	if pct > 1 {
		pct = 1
	}
	return fmt.Sprintf("%s %s / %s", r.bar.ViewAs(pct), humanize.Bytes(uint64(soFar)), humanize.Bytes(uint64(total)))
}

func (r *Reporter) finish(style lipgloss.Style, message, url string) {
	if r.inTransfer > 0 {
		fmt.Fprintln(r.out)
	}
	r.inTransfer = 0
	r.current = ""

	if message == "" {
		return
	}
	slog.Debug("transfer finished", "url", url, "message", message)
	fmt.Fprintln(r.out, styles.Render(style, message))
}

func (r *Reporter) truncate(url string) string {
	room := r.width - len("Transferring :")
	if room < 16 {
		room = 16
	}
	return runewidth.Truncate(url, room, "...")
}
