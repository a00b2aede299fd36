package cli

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/cronobak/cronobak/internal/humanstatus"
	"github.com/cronobak/cronobak/pipeline"
)

//nolint:gochecknoglobals // matches the teacher's own package-level color palette (cli_progress.go)
var (
	noteColor  = color.New(color.FgHiCyan)
	errorColor = color.New(color.FgHiRed)
)

// Progress renders pipeline.Status ticks as a single self-overwriting
// terminal line, or one line per call when stdout isn't a terminal —
// mirroring cli_progress.go's lastLineLength/spinner bookkeeping, scaled
// down to this module's one Status struct instead of kopia's many upload
// counters.
type Progress struct {
	mu             sync.Mutex
	isTerminal     bool
	lastLineLength int
}

// NewProgress detects whether fd refers to a terminal, via go-isatty, the
// same library the teacher uses to decide whether to colourise output.
func NewProgress(fd uintptr) *Progress {
	return &Progress{isTerminal: isatty.IsTerminal(fd)}
}

// StatusFn returns a pipeline.Status callback suitable for
// pipeline.New / snapshot.Controller's StatusFn field.
func (p *Progress) StatusFn() func(pipeline.Status) {
	return func(s pipeline.Status) {
		p.mu.Lock()
		defer p.mu.Unlock()

		line := fmt.Sprintf("%s  %s / %s (%s)",
			s.Path,
			humanstatus.Bytes(uint64(s.GlobalBytesDone)), //nolint:gosec // byte counts never negative
			humanstatus.Bytes(uint64(s.GlobalBytesSum)),  //nolint:gosec
			humanstatus.Percent(uint64(s.GlobalBytesDone), uint64(s.GlobalBytesSum)),
		)

		if p.isTerminal {
			fmt.Printf("\r%s\r%s", strings.Repeat(" ", p.lastLineLength), line)
			p.lastLineLength = len(line)
		} else {
			fmt.Println(line)
		}
	}
}

// Done finishes the progress line so the next output starts on a fresh one.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isTerminal && p.lastLineLength > 0 {
		fmt.Println()
		p.lastLineLength = 0
	}
}

// PrintNote prints a cyan informational line when stdout is a terminal,
// plain text otherwise — the same defaultColor/noteColor split the teacher
// CLI uses for its own run summaries.
func PrintNote(format string, args ...interface{}) {
	noteColor.Printf(format+"\n", args...)
}

// PrintError prints a red error line, matching the teacher's errorColor use.
func PrintError(format string, args ...interface{}) {
	errorColor.Printf(format+"\n", args...)
}
