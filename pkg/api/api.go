// Package api implements the REST API for storing, running and evaluating
// expression programs.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/jitcalc/pkg/driver"
	"github.com/lemonberrylabs/jitcalc/pkg/jit"
	"github.com/lemonberrylabs/jitcalc/pkg/store"
)

// MaxSourceLength is the maximum accepted program source size in bytes.
const MaxSourceLength = 64 << 10

// Server is the HTTP API server.
type Server struct {
	app      *fiber.App
	store    *store.Store
	mode     driver.Mode
	recorder *driver.Recorder

	persistMu sync.Mutex
	stateFile string
}

// New creates a new API server. mode is the parse error policy used for
// every run.
func New(s *store.Store, mode driver.Mode) *Server {
	srv := &Server{
		store:    s,
		mode:     mode,
		recorder: driver.NewRecorder(s, driver.Options{Mode: mode}),
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             MaxSourceLength + 4096,
	})

	app.Post("/v1/evaluate", srv.evaluate)

	// Programs API
	app.Post("/v1/programs", srv.createProgram)
	app.Get("/v1/programs", srv.listPrograms)
	app.Get("/v1/programs/:program", srv.getProgram)
	app.Patch("/v1/programs/:program", srv.updateProgram)
	app.Delete("/v1/programs/:program", srv.deleteProgram)

	// Runs API
	app.Post("/v1/programs/:program/runs", srv.createRun)
	app.Get("/v1/programs/:program/runs", srv.listRuns)
	app.Get("/v1/programs/:program/runs/:run", srv.getRun)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Listener serves HTTP on an existing listener.
func (s *Server) Listener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing and for
// mounting the web UI).
func (s *Server) App() *fiber.App {
	return s.app
}

// SetStateFile makes the server write a store snapshot to path after every
// change.
func (s *Server) SetStateFile(path string) {
	s.persistMu.Lock()
	s.stateFile = path
	s.persistMu.Unlock()
}

// Persist writes a store snapshot to the state file, if one is set.
// Other front ends sharing the store call it after their own changes.
func (s *Server) Persist() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.stateFile == "" {
		return
	}
	if err := s.store.SaveFile(s.stateFile); err != nil {
		log.Printf("Warning: could not save state to %s: %v", s.stateFile, err)
	}
}

// --- Evaluate ---

type evaluateRequest struct {
	Source string `json:"source"`
}

func (s *Server) evaluate(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	if strings.TrimSpace(req.Source) == "" {
		return apiError(c, 400, "INVALID_ARGUMENT", "source is required")
	}

	var out bytes.Buffer
	engine := driver.NewEngine(driver.Options{Mode: s.mode, Out: &out})
	report, err := engine.RunString(c.UserContext(), req.Source)
	if err != nil {
		if errors.Is(err, jit.ErrExecMemory) {
			return apiError(c, 500, "INTERNAL", err.Error())
		}
		var unsupported *jit.UnsupportedSymbolError
		if errors.As(err, &unsupported) {
			return apiError(c, 500, "INTERNAL", err.Error())
		}
		return apiError(c, 400, "INVALID_ARGUMENT", err.Error())
	}

	return c.JSON(reportToJSON(report, out.String()))
}

// --- Program Handlers ---

type programRequest struct {
	Source      string `json:"source"`
	Description string `json:"description"`
}

func (s *Server) createProgram(c *fiber.Ctx) error {
	programID := c.Query("programId")
	if programID == "" {
		return apiError(c, 400, "INVALID_ARGUMENT", "programId query parameter is required")
	}
	if !store.ValidProgramID(programID) {
		return apiError(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid programId %q", programID))
	}

	var req programRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Source == "" {
		return apiError(c, 400, "INVALID_ARGUMENT", "source is required")
	}

	n, err := driver.Check(req.Source)
	if err != nil {
		return apiError(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid program: %v", err))
	}

	p, err := s.store.CreateProgram(programID, req.Source, req.Description, n)
	if err != nil {
		return storeError(c, err)
	}
	s.Persist()
	return c.Status(200).JSON(programToJSON(p))
}

func (s *Server) getProgram(c *fiber.Ctx) error {
	p, err := s.store.GetProgram(store.ProgramName(c.Params("program")))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(programToJSON(p))
}

func (s *Server) listPrograms(c *fiber.Ctx) error {
	programs := s.store.ListPrograms()

	items := make([]fiber.Map, len(programs))
	for i, p := range programs {
		items[i] = programToJSON(p)
	}
	return c.JSON(fiber.Map{
		"programs": items,
	})
}

func (s *Server) updateProgram(c *fiber.Ctx) error {
	name := store.ProgramName(c.Params("program"))

	var req programRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	current, err := s.store.GetProgram(name)
	if err != nil {
		return storeError(c, err)
	}
	src, n := current.Source, current.Expressions
	if req.Source != "" {
		n, err = driver.Check(req.Source)
		if err != nil {
			return apiError(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid program: %v", err))
		}
		src = req.Source
	}

	p, err := s.store.UpdateProgram(name, src, req.Description, n)
	if err != nil {
		return storeError(c, err)
	}
	s.Persist()
	return c.JSON(programToJSON(p))
}

func (s *Server) deleteProgram(c *fiber.Ctx) error {
	if err := s.store.DeleteProgram(store.ProgramName(c.Params("program"))); err != nil {
		return storeError(c, err)
	}
	s.Persist()
	return c.JSON(fiber.Map{})
}

// --- Run Handlers ---

func (s *Server) createRun(c *fiber.Ctx) error {
	run, err := s.recorder.Run(c.UserContext(), store.ProgramName(c.Params("program")))
	if err != nil {
		return storeError(c, err)
	}
	s.Persist()
	return c.JSON(runToJSON(run))
}

func (s *Server) getRun(c *fiber.Ctx) error {
	name := fmt.Sprintf("%s/runs/%s", store.ProgramName(c.Params("program")), c.Params("run"))
	run, err := s.store.GetRun(name)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(runToJSON(run))
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	name := store.ProgramName(c.Params("program"))
	if _, err := s.store.GetProgram(name); err != nil {
		return storeError(c, err)
	}
	runs := s.store.ListRuns(name)

	items := make([]fiber.Map, len(runs))
	for i, r := range runs {
		items[i] = runToJSON(r)
	}
	return c.JSON(fiber.Map{
		"runs": items,
	})
}

// --- Directory Loading ---

// LoadDir deploys every .calc and .expr file in dir as a program. The file
// name (sans extension) becomes the program ID.
func (s *Server) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading programs directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".calc" && ext != ".expr" {
			continue
		}

		base := strings.TrimSuffix(name, ext)
		programID := strings.ToLower(base)

		if programID != base {
			log.Printf("Warning: lowercased program ID %q (from file %q)", programID, name)
		}
		if !store.ValidProgramID(programID) {
			log.Printf("Warning: skipping file %q, invalid program ID %q", name, programID)
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Printf("Warning: could not read %q: %v", name, err)
			continue
		}
		if err := s.Deploy(programID, string(data), ""); err != nil {
			log.Printf("Warning: could not deploy %q: %v", name, err)
			continue
		}
		loaded++
		log.Printf("Loaded program %q from %s", programID, name)
	}

	log.Printf("Loaded %d program(s) from %s", loaded, dir)
	return nil
}

// Deploy validates src and stores it under programID, replacing the source
// of an existing program with the same ID. An empty description keeps the
// existing one.
func (s *Server) Deploy(programID, src, description string) error {
	if !store.ValidProgramID(programID) {
		return fmt.Errorf("invalid program ID %q", programID)
	}
	n, err := driver.Check(src)
	if err != nil {
		return err
	}
	_, err = s.store.CreateProgram(programID, src, description, n)
	if errors.Is(err, store.ErrAlreadyExists) {
		_, err = s.store.UpdateProgram(store.ProgramName(programID), src, description, n)
	}
	if err != nil {
		return err
	}
	s.Persist()
	return nil
}

// --- Helpers ---

func apiError(c *fiber.Ctx, code int, status, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apiError(c, 404, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return apiError(c, 409, "ALREADY_EXISTS", err.Error())
	default:
		return apiError(c, 500, "INTERNAL", err.Error())
	}
}

func programToJSON(p *store.Program) fiber.Map {
	return fiber.Map{
		"name":        p.Name,
		"description": p.Description,
		"state":       p.State,
		"revisionId":  p.RevisionID,
		"expressions": p.Expressions,
		"createTime":  p.CreateTime.Format(time.RFC3339),
		"updateTime":  p.UpdateTime.Format(time.RFC3339),
		"source":      p.Source,
	}
}

func runToJSON(r *store.Run) fiber.Map {
	result := fiber.Map{
		"name":              r.Name,
		"state":             r.State,
		"startTime":         r.StartTime.Format(time.RFC3339),
		"programRevisionId": r.ProgramRevisionID,
		"results":           resultsToJSON(r.Results),
	}
	if r.Error != nil {
		result["error"] = runErrorToJSON(r.Error)
	}
	if !r.EndTime.IsZero() {
		result["endTime"] = r.EndTime.Format(time.RFC3339)
	}
	return result
}

func resultsToJSON(results []store.Result) []fiber.Map {
	items := make([]fiber.Map, len(results))
	for i, res := range results {
		items[i] = fiber.Map{
			"index":  res.Index,
			"tree":   res.Tree,
			"length": res.Length,
			"value":  res.Value,
		}
		if res.Error != "" {
			items[i]["error"] = res.Error
		}
	}
	return items
}

func runErrorToJSON(e *store.RunError) fiber.Map {
	m := fiber.Map{
		"kind":    e.Kind,
		"message": e.Message,
	}
	if e.Line > 0 {
		m["line"] = e.Line
		m["column"] = e.Column
	}
	return m
}

func reportToJSON(r *driver.Report, output string) fiber.Map {
	result := fiber.Map{
		"tokens":  r.Tokens,
		"results": resultsToJSON(driver.Results(r)),
		"output":  output,
	}
	if err := r.Err(); err != nil {
		result["error"] = runErrorToJSON(store.NewRunError(err))
	}
	return result
}
