package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lemonberrylabs/jitcalc/pkg/driver"
	"github.com/lemonberrylabs/jitcalc/pkg/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s := store.New()
	return New(s, driver.ModeRecover), s
}

func do(t *testing.T, srv *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("%s %s: decoding %q: %v", method, path, data, err)
		}
	}
	return resp.StatusCode, out
}

func errorStatus(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	s, _ := e["status"].(string)
	return s
}

func TestEvaluate(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := do(t, srv, http.MethodPost, "/v1/evaluate", `{"source":"5 + -4 - 3\n2 ^ 9"}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, body)
	}
	results, _ := body["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("results = %v", body["results"])
	}
	first := results[0].(map[string]any)
	if first["value"].(float64) != -2 || first["length"].(float64) != 31 {
		t.Errorf("first result = %v", first)
	}
	if second := results[1].(map[string]any); second["value"].(float64) != 2 {
		t.Errorf("power result = %v", second)
	}
	if out, _ := body["output"].(string); !strings.Contains(out, "Output: -2") {
		t.Errorf("output = %q", out)
	}
}

func TestEvaluateErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
	}{
		{"missing source", `{}`, 400, ""},
		{"bad json", `{`, 400, ""},
		{"parse error recovered", `{"source":"1 + 2\n)"}`, 200, "ParseError"},
		{"lexical error", `{"source":"1 + 12ab"}`, 200, "LexicalError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, srv, http.MethodPost, "/v1/evaluate", tt.body)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %v)", code, tt.wantCode, body)
			}
			if tt.wantKind == "" {
				return
			}
			e, _ := body["error"].(map[string]any)
			if e["kind"] != tt.wantKind {
				t.Errorf("error = %v, want kind %s", body["error"], tt.wantKind)
			}
		})
	}
}

func TestEvaluateAbortMode(t *testing.T) {
	srv := New(store.New(), driver.ModeAbort)
	code, body := do(t, srv, http.MethodPost, "/v1/evaluate", `{"source":"7 / 0"}`)
	if code != 400 || errorStatus(body) != "INVALID_ARGUMENT" {
		t.Errorf("status = %d, body %v", code, body)
	}
}

func TestProgramCRUD(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := do(t, srv, http.MethodPost, "/v1/programs?programId=sums", `{"source":"1 + 2\n3 * 4","description":"two sums"}`)
	if code != 200 {
		t.Fatalf("create status = %d, body %v", code, body)
	}
	if body["name"] != "programs/sums" || body["expressions"].(float64) != 2 {
		t.Errorf("created = %v", body)
	}
	rev := body["revisionId"]

	code, body = do(t, srv, http.MethodPost, "/v1/programs?programId=sums", `{"source":"1"}`)
	if code != 409 || errorStatus(body) != "ALREADY_EXISTS" {
		t.Errorf("duplicate create = %d %v", code, body)
	}

	code, body = do(t, srv, http.MethodGet, "/v1/programs/sums", "")
	if code != 200 || body["description"] != "two sums" {
		t.Errorf("get = %d %v", code, body)
	}

	code, body = do(t, srv, http.MethodPatch, "/v1/programs/sums", `{"source":"9"}`)
	if code != 200 || body["revisionId"] == rev || body["expressions"].(float64) != 1 {
		t.Errorf("update = %d %v", code, body)
	}

	code, body = do(t, srv, http.MethodGet, "/v1/programs", "")
	if items, _ := body["programs"].([]any); code != 200 || len(items) != 1 {
		t.Errorf("list = %d %v", code, body)
	}

	if code, _ = do(t, srv, http.MethodDelete, "/v1/programs/sums", ""); code != 200 {
		t.Errorf("delete status = %d", code)
	}
	code, body = do(t, srv, http.MethodGet, "/v1/programs/sums", "")
	if code != 404 || errorStatus(body) != "NOT_FOUND" {
		t.Errorf("get after delete = %d %v", code, body)
	}
}

func TestCreateProgramValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"missing id", "/v1/programs", `{"source":"1"}`},
		{"invalid id", "/v1/programs?programId=Bad!", `{"source":"1"}`},
		{"missing source", "/v1/programs?programId=ok", `{}`},
		{"parse error", "/v1/programs?programId=ok", `{"source":"(1 + 2"}`},
		{"lexical error", "/v1/programs?programId=ok", `{"source":"\"open"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, srv, http.MethodPost, tt.path, tt.body)
			if code != 400 || errorStatus(body) != "INVALID_ARGUMENT" {
				t.Errorf("status = %d, body %v", code, body)
			}
		})
	}
}

func TestRuns(t *testing.T) {
	srv, _ := newTestServer(t)

	if code, body := do(t, srv, http.MethodPost, "/v1/programs?programId=div", `{"source":"8 / 3\n8 mod 0"}`); code != 200 {
		t.Fatalf("create = %d %v", code, body)
	}

	code, body := do(t, srv, http.MethodPost, "/v1/programs/div/runs", "")
	if code != 200 {
		t.Fatalf("run status = %d, body %v", code, body)
	}
	if body["state"] != string(store.RunFailed) {
		t.Errorf("state = %v, want FAILED", body["state"])
	}
	runErr, _ := body["error"].(map[string]any)
	if runErr["kind"] != "ArithmeticError" {
		t.Errorf("error = %v", body["error"])
	}
	results, _ := body["results"].([]any)
	if len(results) != 2 || results[0].(map[string]any)["value"].(float64) != 2 {
		t.Errorf("results = %v", body["results"])
	}

	name := body["name"].(string)
	runID := name[strings.LastIndex(name, "/")+1:]
	code, body = do(t, srv, http.MethodGet, "/v1/programs/div/runs/"+runID, "")
	if code != 200 || body["name"] != name {
		t.Errorf("get run = %d %v", code, body)
	}

	code, body = do(t, srv, http.MethodGet, "/v1/programs/div/runs", "")
	if runs, _ := body["runs"].([]any); code != 200 || len(runs) != 1 {
		t.Errorf("list runs = %d %v", code, body)
	}

	if code, _ = do(t, srv, http.MethodPost, "/v1/programs/missing/runs", ""); code != 404 {
		t.Errorf("run of missing program status = %d", code)
	}
	if code, _ = do(t, srv, http.MethodGet, "/v1/programs/div/runs/nope", ""); code != 404 {
		t.Errorf("missing run status = %d", code)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"Area.calc":   "3 * 4",
		"sum.expr":    "1 + 2\n4 + 5",
		"broken.calc": "(1",
		"notes.txt":   "ignored",
		"9bad.calc":   "1",
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	srv, s := newTestServer(t)
	if err := srv.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	var ids []string
	for _, p := range s.ListPrograms() {
		ids = append(ids, p.ID())
	}
	if strings.Join(ids, ",") != "area,sum" {
		t.Errorf("loaded programs = %v", ids)
	}

	if err := srv.LoadDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestDeployReplacesSource(t *testing.T) {
	srv, s := newTestServer(t)
	if err := srv.Deploy("p", "1", "first"); err != nil {
		t.Fatal(err)
	}
	if err := srv.Deploy("p", "2\n3", ""); err != nil {
		t.Fatal(err)
	}
	p, err := s.GetProgram("programs/p")
	if err != nil {
		t.Fatal(err)
	}
	if p.Source != "2\n3" || p.Expressions != 2 || p.Description != "first" {
		t.Errorf("program = %+v", p)
	}

	if err := srv.Deploy("p", "4", "second"); err != nil {
		t.Fatal(err)
	}
	if p, _ = s.GetProgram("programs/p"); p.Description != "second" {
		t.Errorf("description = %q, want second", p.Description)
	}
}

func TestDeployRejectsInvalidID(t *testing.T) {
	srv, s := newTestServer(t)
	for _, id := range []string{"Foo/x", "", "9lives", strings.Repeat("a", 129)} {
		if err := srv.Deploy(id, "1", ""); err == nil {
			t.Errorf("Deploy(%q) succeeded", id)
		}
	}
	if n := len(s.ListPrograms()); n != 0 {
		t.Errorf("stored %d programs, want 0", n)
	}
}

func TestStateFilePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	srv, _ := newTestServer(t)
	srv.SetStateFile(path)

	if code, body := do(t, srv, http.MethodPost, "/v1/programs?programId=kept", `{"source":"6 * 7"}`); code != 200 {
		t.Fatalf("create = %d %v", code, body)
	}

	loaded := store.New()
	if err := loaded.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := loaded.GetProgram("programs/kept"); err != nil {
		t.Errorf("program not persisted: %v", err)
	}
}
