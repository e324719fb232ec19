package cli

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RM-RAMASAMY/GreenLoop/internal/bridge"
	"github.com/RM-RAMASAMY/GreenLoop/internal/config"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/RM-RAMASAMY/GreenLoop/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"   ___                 _                    \n" +
		"  / __|_ _ ___ ___ _ _| |   ___  ___ _ __   \n" +
		" | (_ | '_/ -_) -_) ' \\ |__/ _ \\/ _ \\ '_ \\  \n" +
		"  \\___|_| \\___\\___|_||_|____\\___/\\___/ .__/  \n" +
		"                                     |_|     \n"
)

var (
	flagBackend    string
	flagAddr       string
	flagCollection string
	flagDimension  int
)

var rootCmd = &cobra.Command{
	Use:   "greenloop-vector-bridge",
	Short: "One-shot JSON bridge to the GreenLoop vector store",
	Long: color.GreenString(logo) + "\nReads one JSON request from stdin, performs one vector store operation\n" +
		"(upsert or search) and writes one JSON line to stdout.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runBridge,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "Vector store backend (overrides GREENLOOP_VECTOR_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "Vector store address (overrides GREENLOOP_VECTOR_ADDR)")
	rootCmd.PersistentFlags().StringVar(&flagCollection, "collection", "", "Collection name (overrides GREENLOOP_VECTOR_COLLECTION)")
	rootCmd.PersistentFlags().IntVar(&flagDimension, "dimension", 0, "Collection vector dimension (overrides GREENLOOP_VECTOR_DIMENSION)")
	rootCmd.AddCommand(versionCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(cmd)
	if err != nil {
		// Bad configuration is still answered in-band so the host sees one
		// error line instead of a bare exit status.
		newLogger(cmd.ErrOrStderr(), config.DefaultLogLevel).Warn("Invalid bridge configuration", "error", err)
		return bridge.WriteResponse(out, bridge.Failure(err, debug.Stack()))
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(bridge.Options{
		Backend:    cfg.Backend,
		Addr:       cfg.Addr,
		Collection: cfg.Collection,
		Dimension:  cfg.Dimension,
		Timeout:    cfg.Timeout.Std(),
		Logger:     logger,
	})
	return b.Run(ctx, cmd.InOrStdin(), out)
}

// loadConfig applies command-line overrides on top of config.Load.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = flagBackend
	}
	if flags.Changed("addr") {
		cfg.Addr = flagAddr
	}
	if flags.Changed("collection") {
		cfg.Collection = flagCollection
	}
	if flags.Changed("dimension") {
		cfg.Dimension = flagDimension
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs to w, never stdout, which carries the protocol.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
