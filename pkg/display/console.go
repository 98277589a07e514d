package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const clearLine = "\x1b[1A\x1b[2K"

// consoleDisplay handles terminal output. Running tasks occupy the last lines
// of the output and are redrawn in place whenever something is printed.
// Mutable
type consoleDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	tasks   []*consoleTask
	drawn   int

	name  lipgloss.Style
	dim   lipgloss.Style
	key   lipgloss.Style
	green lipgloss.Style
}

// NewConsole creates a Display that writes to standard error.
func NewConsole() Display {
	return NewWriterDisplay(os.Stderr)
}

// NewWriterDisplay creates a Display that writes to the provided io.Writer.
func NewWriterDisplay(w io.Writer) Display {
	r := lipgloss.NewRenderer(w)
	return &consoleDisplay{
		out:   w,
		name:  r.NewStyle().Foreground(lipgloss.Color("6")),
		dim:   r.NewStyle().Faint(true),
		key:   r.NewStyle().Bold(true),
		green: r.NewStyle().Foreground(lipgloss.Color("2")),
	}
}

func (d *consoleDisplay) SetVerbose(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verbose = v
}

func (d *consoleDisplay) StartTask(name string) Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := &consoleTask{d: d, name: name}
	d.clear()
	d.tasks = append(d.tasks, t)
	d.redraw()
	return t
}

// Print writes a message directly to the output writer.
func (d *consoleDisplay) Print(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.printLocked(msg)
}

func (d *consoleDisplay) Log(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.verbose {
		return
	}
	d.printLocked(d.dim.Render(msg) + "\n")
}

func (d *consoleDisplay) printLocked(msg string) {
	d.clear()
	fmt.Fprint(d.out, msg)
	d.redraw()
}

func (d *consoleDisplay) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clear()
	d.tasks = nil
}

// clear erases the task lines drawn last.
func (d *consoleDisplay) clear() {
	fmt.Fprint(d.out, strings.Repeat(clearLine, d.drawn))
	d.drawn = 0
}

func (d *consoleDisplay) redraw() {
	for _, t := range d.tasks {
		fmt.Fprintln(d.out, t.status())
		d.drawn++
	}
}

func (d *consoleDisplay) removeTask(t *consoleTask) {
	for i, other := range d.tasks {
		if other == t {
			d.tasks = append(d.tasks[:i], d.tasks[i+1:]...)
			return
		}
	}
}

// RenderOutput displays structured data from an Output struct to the console.
func (d *consoleDisplay) RenderOutput(out *Output) {
	if out == nil {
		return
	}

	var sb strings.Builder
	if out.Message != "" {
		sb.WriteString(out.Message + "\n")
	}

	if len(out.KV) > 0 {
		width := 0
		for _, kv := range out.KV {
			width = max(width, len(kv.Key)+1)
		}
		for _, kv := range out.KV {
			fmt.Fprintf(&sb, "%s %s\n", d.key.Render(fmt.Sprintf("%-*s", width, kv.Key+":")), kv.Value)
		}
	}

	if out.Table != nil {
		d.renderTable(&sb, out.Table)
	}
	d.Print(sb.String())
}

func (d *consoleDisplay) renderTable(sb *strings.Builder, t *Table) {
	if len(t.Header) == 0 {
		return
	}

	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var line strings.Builder
	for i, h := range t.Header {
		fmt.Fprintf(&line, "%-*s  ", widths[i], h)
	}
	sb.WriteString(d.key.Render(strings.TrimRight(line.String(), " ")) + "\n")

	total := 0
	for _, w := range widths {
		total += w + 2
	}
	sb.WriteString(d.dim.Render(strings.Repeat("-", total-2)) + "\n")

	for _, row := range t.Rows {
		line.Reset()
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&line, "%-*s  ", widths[i], cell)
			}
		}
		sb.WriteString(strings.TrimRight(line.String(), " ") + "\n")
	}
}

// consoleTask is the state of one running task; it is guarded by the mutex of
// its display.
// Mutable
type consoleTask struct {
	d       *consoleDisplay
	name    string
	stage   string
	target  string
	percent int
	message string
}

func (t *consoleTask) status() string {
	var sb strings.Builder
	sb.WriteString(t.d.name.Render("[" + t.name + "]"))
	if t.stage != "" {
		sb.WriteString(" " + t.stage)
	}
	if t.target != "" {
		sb.WriteString(" " + t.d.dim.Render(t.target))
	}
	if t.percent > 0 {
		fmt.Fprintf(&sb, " %d%%", t.percent)
	}
	if t.message != "" {
		sb.WriteString(" " + t.message)
	}
	return sb.String()
}

func (t *consoleTask) Log(msg string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if !t.d.verbose {
		return
	}
	t.d.printLocked(fmt.Sprintf("%s %s\n", t.d.name.Render("["+t.name+"]"), msg))
}

func (t *consoleTask) SetStage(name string, target string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.stage, t.target = name, target
	t.d.clear()
	t.d.redraw()
}

func (t *consoleTask) Progress(percent int, message string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.percent, t.message = min(max(percent, 0), 100), message
	t.d.clear()
	t.d.redraw()
}

func (t *consoleTask) Done() {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.clear()
	t.d.removeTask(t)
	if t.d.verbose {
		fmt.Fprintf(t.d.out, "%s %s\n", t.d.name.Render("["+t.name+"]"), t.d.green.Render("Done"))
	}
	t.d.redraw()
}
