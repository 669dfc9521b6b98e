package progress

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// barScale is the bar total: percent with one decimal place.
const barScale = 1000

// UploadBar renders the estimated progress of one brand upload. The service
// reports no byte progress, so the bar follows the estimate ticks and shows
// seconds remaining instead of a measured ETA.
type UploadBar struct {
	progress   *mpb.Progress
	bar        *mpb.Bar
	out        io.Writer
	isTerminal bool
	label      string
	remaining  atomic.Int64
	lastPrint  atomic.Int64 // last percent printed in non-TTY mode
	startTime  time.Time
}

// NewStderrUploadBar creates an UploadBar on stderr, animated only when
// stderr is a terminal.
func NewStderrUploadBar(label string, estimate int) *UploadBar {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal && runtime.GOOS == "windows" {
		enableWindowsANSI(os.Stderr)
	}
	return NewUploadBar(os.Stderr, isTerminal, label, estimate)
}

// NewUploadBar creates an UploadBar writing to out.
func NewUploadBar(out io.Writer, isTerminal bool, label string, estimate int) *UploadBar {
	u := &UploadBar{
		out:        out,
		isTerminal: isTerminal,
		label:      label,
		startTime:  time.Now(),
	}
	u.remaining.Store(int64(estimate))
	u.lastPrint.Store(-1)

	if !isTerminal {
		fmt.Fprintf(out, "Uploading %s (estimated %ds)\n", label, estimate)
		return u
	}

	u.progress = mpb.New(
		mpb.WithOutput(out),
		mpb.WithRefreshRate(200*time.Millisecond),
		mpb.WithWidth(60),
	)
	u.bar = u.progress.New(barScale,
		mpb.BarStyle().
			Lbound("[").
			Filler("█").
			Tip("█").
			Padding("░").
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.Any(func(decor.Statistics) string {
				left := u.remaining.Load()
				if left <= 0 {
					return "waiting for service"
				}
				return fmt.Sprintf("~%ds left", left)
			}, decor.WCSyncWidth),
		),
		mpb.BarRemoveOnComplete(),
	)
	return u
}

// Set moves the bar to percent (0-100) with remaining estimated seconds.
func (u *UploadBar) Set(percent float64, remaining int) {
	u.remaining.Store(int64(remaining))

	if u.bar != nil {
		u.bar.SetCurrent(int64(percent * barScale / 100))
		return
	}

	// Non-TTY: one line per whole percent change
	whole := int64(percent)
	if u.lastPrint.Swap(whole) == whole {
		return
	}
	if remaining > 0 {
		fmt.Fprintf(u.out, "  %3.0f%%  ~%ds left\n", percent, remaining)
	} else {
		fmt.Fprintf(u.out, "  %3.0f%%  waiting for service\n", percent)
	}
}

// Complete fills the bar and removes it.
func (u *UploadBar) Complete() {
	if u.bar != nil {
		u.bar.SetCurrent(barScale)
		u.bar.SetTotal(barScale, true)
	}
	u.wait()
	u.writeLine(fmt.Sprintf("✓ %s uploaded in %s\n", u.label, time.Since(u.startTime).Round(100*time.Millisecond)))
}

// Fail stops the bar where it is and leaves it visible.
func (u *UploadBar) Fail() {
	if u.bar != nil {
		u.bar.Abort(false)
	}
	u.wait()
	u.writeLine(fmt.Sprintf("✗ %s upload failed after %s\n", u.label, time.Since(u.startTime).Round(100*time.Millisecond)))
}

// IsTerminal reports whether the bar is animated.
func (u *UploadBar) IsTerminal() bool {
	return u.isTerminal
}

func (u *UploadBar) wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

func (u *UploadBar) writeLine(msg string) {
	_, _ = io.WriteString(u.out, msg)
}
