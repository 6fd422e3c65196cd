package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/regeindary/internal/config"
	"github.com/roach88/regeindary/internal/registry"
	"github.com/roach88/regeindary/internal/source"
	"github.com/roach88/regeindary/internal/store"
)

// loadConfig reads the environment file and applies the --db override.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return nil, err
	}
	if o.Database != "" {
		cfg.DatabaseURL = o.Database
	}
	return cfg, nil
}

// openStore loads the configuration and opens the store it names. The caller
// closes the store.
func (o *RootOptions) openStore(f *OutputFormatter) (*store.Store, *config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, fail(f, "configuration", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		_ = f.Error(ErrCodeConfig, err.Error()+" (use --db)", nil)
		return nil, nil, WrapExitError(ExitCommandError, "configuration", err)
	}
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		_ = f.Error(ErrCodeConfig, "open database: "+err.Error(), nil)
		return nil, nil, WrapExitError(ExitCommandError, "open database", err)
	}
	f.VerboseLog("database: %s (%s)", cfg.DatabaseURL, st.Backend())
	return st, cfg, nil
}

// loadInputs reads a registry definition and a source file.
func loadInputs(f *OutputFormatter, defPath, srcPath string) (*registry.Definition, *source.File, error) {
	def, err := registry.Load(defPath)
	if err != nil {
		return nil, nil, fail(f, "load definition", err)
	}
	file, err := source.ReadFile(srcPath)
	if err != nil {
		return nil, nil, fail(f, "read source", err)
	}
	f.VerboseLog("read %d records from %s (%s, %s)", len(file.Records), srcPath, file.Format, file.Encoding)
	return def, file, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. The
// returned stop function releases the signal handler.
func signalContext(cmd *cobra.Command) (context.Context, func()) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// commandContext returns the command's context or a background one when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
