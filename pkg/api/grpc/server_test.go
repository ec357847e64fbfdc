package grpcapi

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/lemonberrylabs/jitcalc/pkg/api"
	"github.com/lemonberrylabs/jitcalc/pkg/driver"
	"github.com/lemonberrylabs/jitcalc/pkg/store"
)

func startTestServer(t *testing.T, s *store.Store, mode driver.Mode) (string, func()) {
	t.Helper()
	return startServer(t, New(s, mode))
}

func startServer(t *testing.T, srv *Server) (string, func()) {
	t.Helper()

	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.grpc.Serve(lis)

	return lis.Addr().String(), func() {
		srv.grpc.Stop()
	}
}

func dial(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	return conn
}

func TestEvaluate(t *testing.T) {
	addr, cleanup := startTestServer(t, store.New(), driver.ModeRecover)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()
	client := NewCalculatorClient(conn)

	out, err := client.Evaluate(context.Background(), "5 + -4 - 3\n7 mod 4")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	results := out.GetFields()["results"].GetListValue().GetValues()
	if len(results) != 2 {
		t.Fatalf("results = %v", out)
	}
	first := results[0].GetStructValue().GetFields()
	if first["value"].GetNumberValue() != -2 || first["length"].GetNumberValue() != 31 {
		t.Errorf("first result = %v", first)
	}
	if v := results[1].GetStructValue().GetFields()["value"].GetNumberValue(); v != 3 {
		t.Errorf("7 mod 4 = %v, want 3", v)
	}
	if _, ok := out.GetFields()["error"]; ok {
		t.Errorf("unexpected error field: %v", out.GetFields()["error"])
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name string
		mode driver.Mode
		src  string
		want codes.Code
	}{
		{"empty", driver.ModeRecover, "  ", codes.InvalidArgument},
		{"parse error abort", driver.ModeAbort, "1 +", codes.InvalidArgument},
		{"division by zero abort", driver.ModeAbort, "1 / 0", codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, cleanup := startTestServer(t, store.New(), tt.mode)
			defer cleanup()
			conn := dial(t, addr)
			defer conn.Close()

			_, err := NewCalculatorClient(conn).Evaluate(context.Background(), tt.src)
			if status.Code(err) != tt.want {
				t.Errorf("error = %v, want code %v", err, tt.want)
			}
		})
	}
}

func TestEvaluateRecoveredParseError(t *testing.T) {
	addr, cleanup := startTestServer(t, store.New(), driver.ModeRecover)
	defer cleanup()
	conn := dial(t, addr)
	defer conn.Close()

	out, err := NewCalculatorClient(conn).Evaluate(context.Background(), "2 * 21\n(3")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if n := len(out.GetFields()["results"].GetListValue().GetValues()); n != 1 {
		t.Errorf("got %d results, want 1", n)
	}
	kind := out.GetFields()["error"].GetStructValue().GetFields()["kind"].GetStringValue()
	if kind != "ParseError" {
		t.Errorf("error kind = %q", kind)
	}
}

func TestRunProgramAndGetRun(t *testing.T) {
	s := store.New()
	if _, err := s.CreateProgram("area", "6 * 7", "", 1); err != nil {
		t.Fatal(err)
	}
	addr, cleanup := startTestServer(t, s, driver.ModeRecover)
	defer cleanup()
	conn := dial(t, addr)
	defer conn.Close()
	client := NewCalculatorClient(conn)
	ctx := context.Background()

	run, err := client.RunProgram(ctx, "area")
	if err != nil {
		t.Fatalf("RunProgram: %v", err)
	}
	fields := run.GetFields()
	if fields["state"].GetStringValue() != string(store.RunSucceeded) {
		t.Errorf("state = %v", fields["state"])
	}
	results := fields["results"].GetListValue().GetValues()
	if len(results) != 1 || results[0].GetStructValue().GetFields()["value"].GetNumberValue() != 42 {
		t.Errorf("results = %v", fields["results"])
	}

	name := fields["name"].GetStringValue()
	got, err := client.GetRun(ctx, name)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.GetFields()["name"].GetStringValue() != name {
		t.Errorf("GetRun name = %v", got.GetFields()["name"])
	}

	if _, err := client.RunProgram(ctx, "programs/area"); err != nil {
		t.Errorf("RunProgram by full name: %v", err)
	}
	if _, err := client.RunProgram(ctx, "missing"); status.Code(err) != codes.NotFound {
		t.Errorf("missing program error = %v", err)
	}
	if _, err := client.RunProgram(ctx, ""); status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty program error = %v", err)
	}
	if _, err := client.GetRun(ctx, "programs/area/runs/nope"); status.Code(err) != codes.NotFound {
		t.Errorf("missing run error = %v", err)
	}
}

func TestListPrograms(t *testing.T) {
	s := store.New()
	for _, id := range []string{"b", "a"} {
		if _, err := s.CreateProgram(id, "1", "", 1); err != nil {
			t.Fatal(err)
		}
	}
	addr, cleanup := startTestServer(t, s, driver.ModeRecover)
	defer cleanup()
	conn := dial(t, addr)
	defer conn.Close()

	out, err := NewCalculatorClient(conn).ListPrograms(context.Background())
	if err != nil {
		t.Fatalf("ListPrograms: %v", err)
	}
	items := out.GetFields()["programs"].GetListValue().GetValues()
	if len(items) != 2 {
		t.Fatalf("programs = %v", out)
	}
	if name := items[0].GetStructValue().GetFields()["name"].GetStringValue(); name != "programs/a" {
		t.Errorf("first program = %q", name)
	}
}

func TestRunProgramSavesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	s := store.New()
	httpServer := api.New(s, driver.ModeRecover)
	httpServer.SetStateFile(path)
	if err := httpServer.Deploy("p", "6 * 7", ""); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	srv := New(s, driver.ModeRecover)
	srv.OnChange(httpServer.Persist)
	addr, cleanup := startServer(t, srv)
	defer cleanup()
	conn := dial(t, addr)
	defer conn.Close()

	if _, err := NewCalculatorClient(conn).RunProgram(context.Background(), "p"); err != nil {
		t.Fatalf("RunProgram: %v", err)
	}

	loaded := store.New()
	if err := loaded.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if runs := loaded.ListRuns(store.ProgramName("p")); len(runs) != 1 {
		t.Errorf("runs in state file = %d, want 1", len(runs))
	}
}
