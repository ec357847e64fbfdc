// Package grpcapi implements the gRPC Calculator service. Messages use the
// protobuf well-known types so that no generated code is required.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lemonberrylabs/jitcalc/pkg/driver"
	"github.com/lemonberrylabs/jitcalc/pkg/expr"
	"github.com/lemonberrylabs/jitcalc/pkg/store"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "jitcalc.v1.Calculator"

// CalculatorServer is the server API for the Calculator service.
type CalculatorServer interface {
	// Evaluate runs an expression source and returns its report.
	Evaluate(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// RunProgram runs a stored program by name or ID and returns the run.
	RunProgram(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// GetRun returns a recorded run by its full name.
	GetRun(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListPrograms(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// Server implements CalculatorServer on top of a store.
type Server struct {
	store    *store.Store
	mode     driver.Mode
	recorder *driver.Recorder
	grpc     *grpc.Server

	// onChange runs after every store mutation made through this server.
	onChange func()
}

// New creates a new gRPC server wrapping the given store.
func New(s *store.Store, mode driver.Mode) *Server {
	srv := &Server{
		store:    s,
		mode:     mode,
		recorder: driver.NewRecorder(s, driver.Options{Mode: mode}),
	}

	gs := grpc.NewServer()
	RegisterCalculatorServer(gs, srv)
	srv.grpc = gs

	return srv
}

// OnChange sets a function that is called after every run recorded
// through this server, typically to save a state snapshot.
func (s *Server) OnChange(fn func()) {
	s.onChange = fn
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeListener(lis)
}

// ServeListener serves gRPC requests on an existing listener.
func (s *Server) ServeListener(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

func (s *Server) Evaluate(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	src := req.GetValue()
	if strings.TrimSpace(src) == "" {
		return nil, status.Error(codes.InvalidArgument, "source is required")
	}

	report, err := driver.NewEngine(driver.Options{Mode: s.mode}).RunString(ctx, src)
	if err != nil {
		return nil, pipelineStatus(err)
	}

	m := map[string]any{
		"tokens":  report.Tokens,
		"results": resultsToList(driver.Results(report)),
	}
	if err := report.Err(); err != nil {
		m["error"] = runErrorToMap(store.NewRunError(err))
	}
	return newStruct(m)
}

func (s *Server) RunProgram(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	name := req.GetValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "program is required")
	}
	if !strings.HasPrefix(name, "programs/") {
		name = store.ProgramName(name)
	}

	run, err := s.recorder.Run(ctx, name)
	if err != nil {
		return nil, storeStatus(err)
	}
	if s.onChange != nil {
		s.onChange()
	}
	return newStruct(runToMap(run))
}

func (s *Server) GetRun(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	run, err := s.store.GetRun(req.GetValue())
	if err != nil {
		return nil, storeStatus(err)
	}
	return newStruct(runToMap(run))
}

func (s *Server) ListPrograms(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	programs := s.store.ListPrograms()
	items := make([]any, len(programs))
	for i, p := range programs {
		items[i] = map[string]any{
			"name":        p.Name,
			"description": p.Description,
			"state":       string(p.State),
			"revisionId":  p.RevisionID,
			"expressions": p.Expressions,
			"updateTime":  p.UpdateTime.Format(time.RFC3339),
		}
	}
	return newStruct(map[string]any{"programs": items})
}

// --- Helpers ---

func pipelineStatus(err error) error {
	switch expr.KindOf(err) {
	case expr.KindLexicalError, expr.KindParseError, expr.KindArithmeticError:
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

func storeStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return st, nil
}

func runToMap(r *store.Run) map[string]any {
	m := map[string]any{
		"name":              r.Name,
		"state":             string(r.State),
		"programRevisionId": r.ProgramRevisionID,
		"startTime":         r.StartTime.Format(time.RFC3339),
		"results":           resultsToList(r.Results),
	}
	if !r.EndTime.IsZero() {
		m["endTime"] = r.EndTime.Format(time.RFC3339)
	}
	if r.Error != nil {
		m["error"] = runErrorToMap(r.Error)
	}
	return m
}

func resultsToList(results []store.Result) []any {
	items := make([]any, len(results))
	for i, res := range results {
		item := map[string]any{
			"index":  res.Index,
			"tree":   res.Tree,
			"length": res.Length,
			"value":  res.Value,
		}
		if res.Error != "" {
			item["error"] = res.Error
		}
		items[i] = item
	}
	return items
}

func runErrorToMap(e *store.RunError) map[string]any {
	m := map[string]any{
		"kind":    e.Kind,
		"message": e.Message,
	}
	if e.Line > 0 {
		m["line"] = e.Line
		m["column"] = e.Column
	}
	return m
}
