package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RM-RAMASAMY/GreenLoop/internal/config"
	"github.com/RM-RAMASAMY/GreenLoop/internal/vectorstore"
)

type DoctorStatus string

const (
	DoctorPass DoctorStatus = "pass"
	DoctorWarn DoctorStatus = "warn"
	DoctorFail DoctorStatus = "fail"
)

type DoctorCheck struct {
	Name    string
	Status  DoctorStatus
	Message string
}

var doctorConnect bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and vector store availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		checks := runDoctor(cmd, doctorConnect)

		failures := 0
		for _, check := range checks {
			if check.Status == DoctorFail {
				failures++
			}
			printCheck(cmd.OutOrStdout(), check)
		}
		if failures > 0 {
			return fmt.Errorf("doctor found %d failing check(s)", failures)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorConnect, "connect", false, "Also connect to the store and check the collection")
	rootCmd.AddCommand(doctorCmd)
}

func printCheck(w io.Writer, check DoctorCheck) {
	symbol := color.GreenString("PASS")
	switch check.Status {
	case DoctorWarn:
		symbol = color.YellowString("WARN")
	case DoctorFail:
		symbol = color.RedString("FAIL")
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", symbol, check.Name, check.Message)
}

func runDoctor(cmd *cobra.Command, connect bool) []DoctorCheck {
	checks := make([]DoctorCheck, 0, 6)

	for _, name := range vectorstore.Drivers() {
		checks = append(checks, DoctorCheck{
			Name:    "backend_" + name,
			Status:  DoctorPass,
			Message: "compiled in",
		})
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return append(checks, DoctorCheck{Name: "config_load", Status: DoctorFail, Message: err.Error()})
	}
	checks = append(checks, DoctorCheck{
		Name:    "config_load",
		Status:  DoctorPass,
		Message: fmt.Sprintf("backend=%s addr=%s collection=%s dimension=%d", cfg.Backend, cfg.Addr, cfg.Collection, cfg.Dimension),
	})

	avail := vectorstore.Probe(cfg.Backend)
	if !avail.Available {
		// The bridge answers "skipped" in this state; hosts treat it as
		// feature-off, so it is a warning here.
		return append(checks, DoctorCheck{Name: "store_available", Status: DoctorWarn, Message: avail.Reason})
	}
	checks = append(checks, DoctorCheck{Name: "store_available", Status: DoctorPass, Message: cfg.Backend})

	if !connect {
		return checks
	}
	return append(checks, checkConnection(cmd.Context(), cfg))
}

func checkConnection(ctx context.Context, cfg *config.Config) DoctorCheck {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := vectorstore.Open(ctx, cfg.Backend, cfg.Addr)
	if err != nil {
		return DoctorCheck{Name: "store_connect", Status: DoctorFail, Message: err.Error()}
	}
	defer client.Close()

	ok, err := client.HasCollection(ctx, cfg.Collection)
	switch {
	case err != nil:
		return DoctorCheck{Name: "store_connect", Status: DoctorFail, Message: err.Error()}
	case !ok:
		return DoctorCheck{Name: "store_connect", Status: DoctorWarn, Message: fmt.Sprintf("collection %q does not exist yet (created on first request)", cfg.Collection)}
	default:
		return DoctorCheck{Name: "store_connect", Status: DoctorPass, Message: fmt.Sprintf("collection %q exists", cfg.Collection)}
	}
}
