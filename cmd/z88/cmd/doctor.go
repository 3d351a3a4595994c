package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/helix-collective/z88/internal/adapters/store"
	"github.com/helix-collective/z88/internal/config"
	"github.com/helix-collective/z88/internal/core"
	"github.com/helix-collective/z88/internal/diagnostics"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and host resources",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	failed := false

	section(out, "Configuration")
	cfg, err := loadConfig()
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, v := range verrs {
				report(out, diagnostics.Check{Name: v.Field, Severity: diagnostics.SeverityFail, Detail: v.Message})
			}
		} else {
			report(out, diagnostics.Check{Name: "config", Severity: diagnostics.SeverityFail, Detail: err.Error()})
		}
		return fmt.Errorf("configuration invalid")
	}
	report(out, diagnostics.Check{Name: "config", Detail: "valid"})

	section(out, "Providers")
	configured := 0
	for _, p := range core.AllProviders() {
		c := diagnostics.Check{Name: string(p), Detail: cfg.Providers.Get(p).Model}
		if cfg.Providers.Get(p).Configured() {
			configured++
		} else {
			c.Severity = diagnostics.SeverityWarn
			c.Detail = "no API key"
		}
		report(out, c)
	}
	if configured == 0 {
		failed = true
	}
	if !cfg.Providers.Get(core.Provider(cfg.Ritual.UtilityProvider)).Configured() {
		report(out, diagnostics.Check{
			Name:     "utility",
			Severity: diagnostics.SeverityWarn,
			Detail:   cfg.Ritual.UtilityProvider + " has no API key; enhancement and continuation will fail",
		})
	}

	section(out, "Storage")
	dataDir := "."
	if cfg.Storage.Driver == store.DriverSQLite {
		dataDir = filepath.Dir(cfg.Storage.Path)
		wc := diagnostics.WritableCheck(dataDir)
		report(out, wc)
		failed = failed || wc.Severity == diagnostics.SeverityFail
	}
	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		report(out, diagnostics.Check{Name: cfg.Storage.Driver, Severity: diagnostics.SeverityFail, Detail: err.Error()})
		failed = true
	} else {
		report(out, diagnostics.Check{Name: cfg.Storage.Driver, Detail: "connected, schema up to date"})
		_ = st.Close()
	}

	section(out, "Host")
	for _, c := range diagnostics.HostChecks(diagnostics.Probe(ctx, dataDir)) {
		report(out, c)
	}

	fmt.Fprintln(out)
	if failed {
		return fmt.Errorf("doctor found problems")
	}
	fmt.Fprintln(out, color.GreenString("z88 is ready"))
	return nil
}

func section(w io.Writer, name string) {
	fmt.Fprintf(w, "\n%s\n", color.New(color.Bold).Sprint(name))
}

func report(w io.Writer, c diagnostics.Check) {
	icon := color.GreenString("✓")
	switch c.Severity {
	case diagnostics.SeverityWarn:
		icon = color.YellowString("⚠")
	case diagnostics.SeverityFail:
		icon = color.RedString("✗")
	}
	fmt.Fprintf(w, "  %s %-12s %s\n", icon, c.Name, c.Detail)
}
