// Package main is the entry point for the jitcalc compiler and server.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/jitcalc/pkg/config"
	"github.com/lemonberrylabs/jitcalc/pkg/driver"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "jitcalc FILE",
	Short: "Compile arithmetic expressions to x86-64 and run them",
	Long: `jitcalc reads a file of integer arithmetic expressions, compiles each
one to native x86-64 code and runs it, printing the code size and result.`,
	Args: cobra.ExactArgs(1),
	RunE: run,
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("jitcalc version {{.Version}}\n")

	rootCmd.PersistentFlags().String("config", "", "Config file, .yaml or .toml (env JITCALC_CONFIG)")
	rootCmd.PersistentFlags().String("mode", "", "Parse error policy: abort or recover (default recover, env JITCALC_MODE)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log emitted instructions and disassembly (env JITCALC_VERBOSE)")

	rootCmd.AddCommand(serveCmd, tokensCmd, treeCmd, disasmCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mode, err := cfg.DriverMode()
	if err != nil {
		return err
	}

	engine := driver.NewEngine(driver.Options{
		Mode:    mode,
		Verbose: cfg.Verbose,
		Out:     cmd.OutOrStdout(),
	})
	_, err = engine.RunFile(context.Background(), args[0])
	return err
}

// loadConfig layers the config file, the environment and the flags that
// were set explicitly on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := os.Getenv("JITCALC_CONFIG")
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup("mode"); f != nil && f.Changed {
		cfg.Mode = f.Value.String()
	}
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Changed {
		cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
	}
	return cfg, nil
}
