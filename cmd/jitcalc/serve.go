package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/jitcalc/pkg/api"
	grpcapi "github.com/lemonberrylabs/jitcalc/pkg/api/grpc"
	"github.com/lemonberrylabs/jitcalc/pkg/config"
	"github.com/lemonberrylabs/jitcalc/pkg/jit"
	"github.com/lemonberrylabs/jitcalc/pkg/store"
	"github.com/lemonberrylabs/jitcalc/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, gRPC API and web UI",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	serveCmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env GRPC_PORT)")
	serveCmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	serveCmd.Flags().String("programs-dir", "", "Directory of .calc/.expr programs to deploy (env PROGRAMS_DIR)")
	serveCmd.Flags().String("state-file", "", "CBOR snapshot file for programs and runs (env STATE_FILE)")
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	mode, err := cfg.DriverMode()
	if err != nil {
		return err
	}

	s := store.New()
	if cfg.Server.StateFile != "" {
		if err := s.LoadFile(cfg.Server.StateFile); err != nil {
			return err
		}
		log.Printf("Loaded state from %s (%d program(s))", cfg.Server.StateFile, len(s.ListPrograms()))
	}

	server := api.New(s, mode)
	server.SetStateFile(cfg.Server.StateFile)

	for _, p := range cfg.Programs {
		if err := server.Deploy(p.ID, p.Source, p.Description); err != nil {
			log.Printf("Warning: could not deploy program %q from config: %v", p.ID, err)
		}
	}
	if cfg.Server.ProgramsDir != "" {
		if err := server.LoadDir(cfg.Server.ProgramsDir); err != nil {
			log.Printf("Warning: failed to load programs directory: %v", err)
		}
	}

	// Register the web UI (non-fatal if template parsing fails)
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Warning: web UI disabled due to template error: %v", r)
			}
		}()
		web.New(s).Register(server.App())
	}()

	grpcServer := grpcapi.New(s, mode)
	grpcServer.OnChange(server.Persist)
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr())
		if err := grpcServer.Serve(cfg.GRPCAddr()); err != nil {
			log.Fatalf("gRPC server error: %v", err)
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down jitcalc...")
		grpcServer.GracefulStop()
		if err := server.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	execMode := "emulated"
	if jit.Native() {
		execMode = "native"
	}
	log.Printf("jitcalc listening on %s (mode=%s, execution=%s)", cfg.HTTPAddr(), cfg.Mode, execMode)
	return server.Listen(cfg.HTTPAddr())
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Server.Port = v
	}
	if v, _ := cmd.Flags().GetInt("grpc-port"); v != 0 {
		cfg.Server.GRPCPort = v
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Server.Host = v
	}
	if v, _ := cmd.Flags().GetString("programs-dir"); v != "" {
		cfg.Server.ProgramsDir = v
	}
	if v, _ := cmd.Flags().GetString("state-file"); v != "" {
		cfg.Server.StateFile = v
	}
}
