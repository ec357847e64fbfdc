// Package web provides the embedded web UI for browsing programs and runs.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/jitcalc/pkg/driver"
	"github.com/lemonberrylabs/jitcalc/pkg/jit"
	"github.com/lemonberrylabs/jitcalc/pkg/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves the web UI pages.
type Handler struct {
	store   *store.Store
	funcMap template.FuncMap
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Native    bool
	Data      interface{}
}

// New creates a new web UI handler.
func New(s *store.Store) *Handler {
	return &Handler{
		store: s,
		funcMap: template.FuncMap{
			"shortName":  shortName,
			"timeAgo":    timeAgo,
			"formatTime": formatTime,
			"duration":   duration,
			"stateClass": stateClass,
			"stateIcon":  stateIcon,
			"truncate":   truncate,
			"countLines": countLines,
		},
	}
}

func (h *Handler) render(c *fiber.Ctx, page string, navActive string, data interface{}) error {
	// Each page is parsed with the layout on its own so that the
	// "content" blocks of different pages never collide.
	tmpl := template.Must(
		template.New("").Funcs(h.funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page),
	)

	pd := pageData{
		NavActive: navActive,
		Native:    jit.Native(),
		Data:      data,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, pd); err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// Register adds web UI routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.dashboard)
	app.Get("/ui/programs/:id", h.programDetail)
	app.Get("/ui/programs/:id/runs/:run", h.runDetail)

	// Redirect root to UI
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page Data Types ---

type dashboardContent struct {
	Programs       []*programView
	RecentRuns     []*store.Run
	ActiveCount    int
	SucceededCount int
	FailedCount    int
}

type programView struct {
	*store.Program
	RunCount int
}

type programDetailContent struct {
	Program *store.Program
	Runs    []*store.Run
	Listing []listingView
}

type listingView struct {
	Index int
	Tree  string
	Text  string
	Err   string
}

type runDetailContent struct {
	Run       *store.Run
	ProgramID string
}

type notFoundContent struct {
	Message string
}

// --- Page Handlers ---

func (h *Handler) dashboard(c *fiber.Ctx) error {
	programs := h.store.ListPrograms()
	sort.SliceStable(programs, func(i, j int) bool {
		return programs[i].UpdateTime.After(programs[j].UpdateTime)
	})

	views := make([]*programView, 0, len(programs))
	for _, p := range programs {
		views = append(views, &programView{
			Program:  p,
			RunCount: len(h.store.ListRuns(p.Name)),
		})
	}

	runs := newestFirst(h.store.ListAllRuns())
	if len(runs) > 10 {
		runs = runs[:10]
	}

	counts := h.store.CountRuns()
	return h.render(c, "dashboard.html", "dashboard", dashboardContent{
		Programs:       views,
		RecentRuns:     runs,
		ActiveCount:    counts[store.RunActive],
		SucceededCount: counts[store.RunSucceeded],
		FailedCount:    counts[store.RunFailed],
	})
}

func (h *Handler) programDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	p, err := h.store.GetProgram(store.ProgramName(id))
	if err != nil {
		return h.notFound(c, fmt.Sprintf("Program '%s' not found", id))
	}

	return h.render(c, "program_detail.html", "programs", programDetailContent{
		Program: p,
		Runs:    newestFirst(h.store.ListRuns(p.Name)),
		Listing: disassembleProgram(p.Source),
	})
}

func (h *Handler) runDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	runID := c.Params("run")
	run, err := h.store.GetRun(fmt.Sprintf("%s/runs/%s", store.ProgramName(id), runID))
	if err != nil {
		return h.notFound(c, fmt.Sprintf("Run '%s' not found", runID))
	}
	return h.render(c, "run_detail.html", "programs", runDetailContent{
		Run:       run,
		ProgramID: id,
	})
}

func (h *Handler) notFound(c *fiber.Ctx, msg string) error {
	c.Status(404)
	return h.render(c, "not_found.html", "", notFoundContent{Message: msg})
}

// --- Helpers ---

func newestFirst(runs []*store.Run) []*store.Run {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	return runs
}

// disassembleProgram compiles each expression of src and returns its
// machine code listing. Expressions that fail to assemble carry the error
// instead.
func disassembleProgram(src string) []listingView {
	compiled, err := driver.Compile(src)
	var views []listingView
	for i, cp := range compiled {
		v := listingView{Index: i, Tree: cp.Tree.String()}
		if cp.Err != nil {
			v.Err = cp.Err.Error()
		} else if text, lerr := jit.Listing(cp.Program.Bytes()); lerr != nil {
			v.Err = lerr.Error()
		} else {
			v.Text = text
		}
		views = append(views, v)
	}
	if err != nil {
		views = append(views, listingView{Index: len(compiled), Err: err.Error()})
	}
	return views
}

// --- Template Helpers ---

func shortName(fullName string) string {
	parts := strings.Split(fullName, "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return fullName
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func duration(start, end time.Time) string {
	if end.IsZero() {
		return fmt.Sprintf("%s (running)", formatDuration(time.Since(start)))
	}
	return formatDuration(end.Sub(start))
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", m, s)
}

// stateClass and stateIcon accept any value so that templates can pass
// typed states directly.
func stateClass(state any) string {
	switch store.RunState(fmt.Sprint(state)) {
	case store.RunActive:
		return "state-active"
	case store.RunSucceeded:
		return "state-succeeded"
	case store.RunFailed:
		return "state-failed"
	default:
		return ""
	}
}

func stateIcon(state any) template.HTML {
	switch store.RunState(fmt.Sprint(state)) {
	case store.RunActive:
		return "&#9654;"
	case store.RunSucceeded:
		return "&#10003;"
	case store.RunFailed:
		return "&#10007;"
	default:
		return "&#8226;"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
