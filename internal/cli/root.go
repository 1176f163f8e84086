package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dl-alexandre/gdfetch/internal/config"
	"github.com/dl-alexandre/gdfetch/internal/logging"
	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
	"github.com/dl-alexandre/gdfetch/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags types.GlobalFlags
	cfg         *config.Config
	logger      logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   version.Name,
	Short: "Fetch pipeline inputs from Google Drive share links",
	Long: `gdfetch downloads files referenced by Google Drive share links
(https://drive.google.com/file/d/<id>/...) using a service account key.

Files land in <input-dir>/GoogleDrive/<name> unless --dl-dir is given.
All commands support JSON output for automation and scripting.`,
	Version:       version.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(globalFlags.Config)
		if err != nil {
			return err
		}
		cfg = loaded

		if err := validateGlobalFlags(cmd); err != nil {
			return err
		}

		level, err := logging.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logConfig := logging.LogConfig{
			Level:           level,
			OutputFile:      globalFlags.LogFile,
			EnableConsole:   !globalFlags.Quiet,
			RedactSensitive: true,
			EnableColor:     true,
			EnableTimestamp: true,
		}
		if logConfig.OutputFile == "" {
			logConfig.OutputFile = cfg.LogFile
		}
		if globalFlags.Verbose {
			logConfig.Level = logging.DEBUG
		}
		if globalFlags.OutputFormat == types.OutputFormatJSON && !globalFlags.Verbose {
			logConfig.EnableConsole = false
		}

		logger, err = logging.NewLogger(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logger != nil {
			return logger.Close()
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "Print the version number of " + version.Name,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if globalFlags.OutputFormat == types.OutputFormatJSON {
			out := NewOutputWriter(globalFlags.OutputFormat, globalFlags.Quiet, globalFlags.Verbose)
			out.SetWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())
			return out.WriteSuccess("version", "", info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags(cmd *cobra.Command) error {
	// Handle --json flag as alias for --output json
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}
	if globalFlags.OutputFormat == "" {
		globalFlags.OutputFormat = cfg.OutputFormat
	}

	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
	}
	if globalFlags.Quiet && globalFlags.Verbose {
		return fmt.Errorf("--quiet and --verbose are mutually exclusive")
	}
	return nil
}

// exitError carries a process exit code out of a command that already reported its failure
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stderr)
}

func execute(ctx context.Context, args []string, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return utils.ExitSuccess
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return utils.GetExitCode(appErr.CLIError.Code)
	}
	return utils.ExitInvalidArgument
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetConfig returns the loaded configuration, or defaults before loading
func GetConfig() *config.Config {
	if cfg == nil {
		return config.DefaultConfig()
	}
	return cfg
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	if logger == nil {
		return logging.NewNoOpLogger()
	}
	return logger
}
