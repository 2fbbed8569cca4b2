package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/njoerd114/offsync/internal/config"
	"github.com/njoerd114/offsync/internal/connectivity"
	"github.com/njoerd114/offsync/internal/model"
)

// Wizard guides the user through first-run configuration.
type Wizard struct {
	prompt *Prompter
	fs     afero.Fs
	path   string
	logger *slog.Logger
	w      io.Writer
}

// NewWizard creates a Wizard that writes the config to path on fs.
func NewWizard(r io.Reader, w io.Writer, fs afero.Fs, path string, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt: NewPrompter(r, w),
		fs:     fs,
		path:   path,
		logger: logger,
		w:      w,
	}
}

// Run executes the wizard. It returns the written configuration, or nil
// when the user kept an existing file.
func (wiz *Wizard) Run(ctx context.Context) (*config.Config, error) {
	fmt.Fprintf(wiz.w, "\nWelcome to offsync setup!\n\n")

	if exists, _ := afero.Exists(wiz.fs, wiz.path); exists {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", wiz.path)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return nil, nil //nolint:nilnil // nothing written
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	fmt.Fprintf(wiz.w, "Step 1/4: Remote store\n")
	cfg := &config.Config{
		RemoteURL: wiz.prompt.String("Remote URL", "http://localhost:8080"),
		Token:     wiz.prompt.Secret("Access token", false),
		ActorID:   wiz.prompt.String("Your user ID", ""),
	}

	fmt.Fprintf(wiz.w, "  Checking %s ...", cfg.RemoteURL)
	probe := connectivity.NewProbe(cfg.RemoteURL, wiz.logger, connectivity.WithTTL(0))
	if probe.IsAvailable(ctx) {
		fmt.Fprintf(wiz.w, " reachable\n\n")
	} else {
		// Offline-first: an unreachable server is not a setup error.
		fmt.Fprintf(wiz.w, " not reachable, changes will queue until it is\n\n")
	}

	fmt.Fprintf(wiz.w, "Step 2/4: Collections\n")
	names := model.Collections()
	picked, err := wiz.prompt.MultiSelect("Collections to synchronize", names)
	if err != nil {
		return nil, fmt.Errorf("selecting collections: %w", err)
	}
	if len(picked) < len(names) {
		for _, i := range picked {
			cfg.Collections = append(cfg.Collections, names[i])
		}
	}
	fmt.Fprintf(wiz.w, "\n")

	fmt.Fprintf(wiz.w, "Step 3/4: Sync interval\n")
	cfg.PollInterval = wiz.prompt.Duration("How often to sync in daemon mode",
		config.DefaultPollInterval, config.MinPollInterval, config.MaxPollInterval)
	fmt.Fprintf(wiz.w, "\n")

	fmt.Fprintf(wiz.w, "Step 4/4: Save configuration\n")
	if err := cfg.Write(wiz.fs, wiz.path); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  Config written to %s\n\n", wiz.path)
	fmt.Fprintf(wiz.w, "Run 'offsync sync' for a single pass or 'offsync daemon' to keep syncing.\n")
	return cfg, nil
}
