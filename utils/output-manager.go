package utils

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/kagedl/resumedl/internal/model"
)

var (
	// Core styles
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))            // dark green
	success2Style = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))             // green
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))            // blue
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))            // cyan
	debugStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))           // light grey
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))            // purple
	streamStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))           // grey
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple

	// Additional config
	basePadding = 2
)

var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"pending": "◉",
	"info":    "ℹ",
	"arrow":   "→",
	"bullet":  "•",
	"dot":     "·",
	"hline":   "━",
}

func PrintSuccess(text string) {
	fmt.Println(successStyle.Render(text))
}
func PrintSuccess2(text string) {
	fmt.Println(success2Style.Render(text))
}
func PrintError(text string) {
	fmt.Println(errorStyle.Render(text))
}
func PrintWarning(text string) {
	fmt.Println(warningStyle.Render(text))
}
func PrintInfo(text string) {
	fmt.Println(infoStyle.Render(text))
}
func PrintDebug(text string) {
	fmt.Println(debugStyle.Render(text))
}
func PrintDetail(text string) {
	fmt.Println(detailStyle.Render(text))
}
func PrintStream(text string) {
	fmt.Println(streamStyle.Render(text))
}
func PrintHeader(text string) {
	fmt.Println(headerStyle.Render(text))
}
func FSuccess(text string) string {
	return successStyle.Render(text)
}
func FSuccess2(text string) string {
	return success2Style.Render(text)
}
func FError(text string) string {
	return errorStyle.Render(text)
}
func FWarning(text string) string {
	return warningStyle.Render(text)
}
func FInfo(text string) string {
	return infoStyle.Render(text)
}
func FDebug(text string) string {
	return debugStyle.Render(text)
}
func FDetail(text string) string {
	return detailStyle.Render(text)
}
func FStream(text string) string {
	return streamStyle.Render(text)
}
func FHeader(text string) string {
	return headerStyle.Render(text)
}

// ======================================== =================
// ======================================== Table Definitions
// ======================================== =================

type Table struct {
	Headers []string
	Rows    [][]string
	table   *table.Table
}

func NewTable(headers []string) *Table {
	t := &Table{
		Headers: headers,
		Rows:    [][]string{},
	}
	t.table = table.New().Headers(headers...)
	t.table = t.table.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Padding(0, 1)
		}
		return lipgloss.NewStyle().Padding(0, 1)
	})
	return t
}

func (t *Table) ReconcileRows() {
	if len(t.Rows) == 0 {
		return
	}
	for _, row := range t.Rows {
		t.table.Row(row...)
	}
}

func (t *Table) FormatTable(useMarkdown bool) string {
	t.ReconcileRows()
	if useMarkdown {
		return t.table.Border(lipgloss.MarkdownBorder()).String()
	}
	return t.table.String()
}

func (t *Table) PrintTable(useMarkdown bool) {
	fmt.Println(t.FormatTable(useMarkdown))
}

func (t *Table) WriteMarkdownTableToFile(outputPath string) error {
	return os.WriteFile(outputPath, []byte(t.FormatTable(true)), 0644)
}

func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80 // Default fallback width if terminal width can't be determined
	}
	return width
}

func wrapText(text string, indent int) []string {
	termWidth := GetTerminalWidth()
	maxWidth := termWidth - indent - 2 // Account for indentation
	if maxWidth <= 10 {
		maxWidth = 80
	}
	if utf8.RuneCountInString(text) <= maxWidth {
		return []string{text}
	}
	var lines []string
	currentLine := ""
	currentWidth := 0
	for _, r := range text {
		runeWidth := 1
		// If adding this rune would exceed max width, flush the line
		if currentWidth+runeWidth > maxWidth {
			lines = append(lines, currentLine)
			currentLine = string(r)
			currentWidth = runeWidth
		} else {
			currentLine += string(r)
			currentWidth += runeWidth
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}
	return lines
}

func PrintProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	percent := float64(current) / float64(total)
	filled := min(int(percent*float64(width)), width)
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	bar += StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// ============================================================
// Task Monitor
// ============================================================
//
// TaskMonitor renders one download task's live segment progress in place,
// polling a caller-supplied function on a ticker and redrawing -- the same
// goroutine+ticker+doneCh shutdown idiom the teacher used for its
// concurrent-batch function panel, generalized here from "one line per
// running function" to "one line per segment of one task" (the CLI's
// `download --watch` for non-blocking downloads, and `status --watch`).

// Poll returns the current snapshot of the task being watched, and false
// once there is nothing left worth polling for (e.g. the task id no longer
// exists).
type Poll func() (model.TaskRecord, bool)

type TaskMonitor struct {
	poll        Poll
	mutex       sync.RWMutex
	numLines    int
	doneCh      chan struct{}
	displayTick time.Duration
	displayWg   sync.WaitGroup
	last        model.TaskRecord
}

func NewTaskMonitor(poll Poll) *TaskMonitor {
	return &TaskMonitor{
		poll:        poll,
		doneCh:      make(chan struct{}),
		displayTick: 200 * time.Millisecond,
	}
}

func (m *TaskMonitor) SetUpdateInterval(interval time.Duration) {
	m.displayTick = interval
}

func (m *TaskMonitor) statusIndicator(status model.Status) string {
	switch status {
	case model.StatusCompleted:
		return successStyle.Render(StyleSymbols["pass"])
	case model.StatusFailed, model.StatusCancelled:
		return errorStyle.Render(StyleSymbols["fail"])
	case model.StatusPaused:
		return warningStyle.Render(StyleSymbols["warning"])
	case model.StatusDownloading:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *TaskMonitor) updateDisplay() bool {
	task, ok := m.poll()
	if !ok {
		return false
	}
	m.mutex.Lock()
	m.last = task
	m.mutex.Unlock()

	if m.numLines > 0 {
		fmt.Printf("\033[%dA\033[J", m.numLines)
	}
	lineCount := 0

	elapsed := time.Since(task.CreatedAt).Round(time.Second)
	if task.StartedAt != nil {
		elapsed = time.Since(*task.StartedAt).Round(time.Second)
	}
	header := fmt.Sprintf("%s %s", debugStyle.Render(elapsed.String()), pendingStyle.Render(string(task.Status)))
	fmt.Printf("%s%s %s\n", strings.Repeat(" ", basePadding), m.statusIndicator(task.Status), header)
	lineCount++

	bar := PrintProgressBar(task.Progress.DownloadedSize, task.Progress.TotalSize, 30)
	fmt.Printf("%s%s\n", strings.Repeat(" ", basePadding+2), bar)
	lineCount++

	segments := append([]model.Segment(nil), task.Progress.Segments...)
	sort.Slice(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	indent := strings.Repeat(" ", basePadding+4)
	for _, seg := range segments {
		line := fmt.Sprintf("%s %s %d/%d bytes", seg.ID, seg.Status, seg.Downloaded, seg.Size())
		for _, wrapped := range wrapText(line, basePadding+4) {
			fmt.Printf("%s%s\n", indent, streamStyle.Render(wrapped))
			lineCount++
		}
	}
	m.numLines = lineCount
	return !task.Status.Terminal()
}

// Start begins redrawing the display on a ticker until Stop is called or
// the polled task reaches a terminal status, whichever comes first.
func (m *TaskMonitor) Start() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !m.updateDisplay() {
					m.showSummary()
					return
				}
			case <-m.doneCh:
				m.updateDisplay()
				m.showSummary()
				return
			}
		}
	}()
}

// Stop signals the display goroutine to redraw one final time and exit,
// and waits for it to do so. Callers that instead want to block until the
// polled task reaches a terminal status on its own should call Wait.
func (m *TaskMonitor) Stop() {
	close(m.doneCh)
	m.displayWg.Wait()
}

// Wait blocks until the display goroutine exits, either because Stop was
// called or because updateDisplay observed a terminal task status.
func (m *TaskMonitor) Wait() {
	m.displayWg.Wait()
}

func (m *TaskMonitor) showSummary() {
	m.mutex.RLock()
	task := m.last
	m.mutex.RUnlock()

	fmt.Println()
	switch task.Status {
	case model.StatusCompleted:
		fmt.Println(strings.Repeat(" ", basePadding) + success2Style.Render("Completed "+task.Config.OutputPath))
	case model.StatusFailed:
		msg := "unknown error"
		if task.Error != nil {
			msg = fmt.Sprintf("%s: %s", task.Error.Code, task.Error.Message)
		}
		fmt.Println(strings.Repeat(" ", basePadding) + errorStyle.Render("Failed: "+msg))
	case model.StatusPaused:
		fmt.Println(strings.Repeat(" ", basePadding) + warningStyle.Render("Paused, resumable with `resume "+task.ID+"`"))
	case model.StatusCancelled:
		fmt.Println(strings.Repeat(" ", basePadding) + warningStyle.Render("Cancelled"))
	}
	fmt.Println()
}

// RenderTaskTable formats task records as a table for the `list` CLI
// output, reusing Table the same way the teacher's batch summary
// reused it for per-transfer results.
func RenderTaskTable(tasks []model.TaskRecord) string {
	t := NewTable([]string{"ID", "Status", "Progress", "Speed", "URL"})
	for _, task := range tasks {
		id := task.ID
		if len(id) > 8 {
			id = id[:8]
		}
		speed := "-"
		if task.Progress.Speed > 0 {
			speed = fmt.Sprintf("%.1f MB/s", task.Progress.Speed/(1024*1024))
		}
		t.Rows = append(t.Rows, []string{
			id,
			string(task.Status),
			fmt.Sprintf("%.1f%%", task.Progress.Percentage),
			speed,
			task.Config.URL,
		})
	}
	return t.FormatTable(false)
}
