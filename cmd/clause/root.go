package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/benjaminschreck/go-clause/internal/config"
	"github.com/benjaminschreck/go-clause/pkg/clause"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

// app carries what every command needs once configuration is loaded.
type app struct {
	cfgFile string
	cfg     *config.Config
	engine  *clause.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "clause",
		Short: "Placeholder templates for legal and business documents",
		Long: `clause validates and renders document templates written with ${NAME}
placeholders and repeated party blocks (${PARTY1_START} ... ${PARTY1_END}).
Templates can be plain text or DOCX files.

Configuration is read from flags, CLAUSE_* environment variables and
.clause.yml (or the file named by --config / CLAUSE_CONFIG_FILE).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is .clause.yml, can also use CLAUSE_CONFIG_FILE)")
	flags.StringP("log-level", "l", "", "log level (debug, info, warn, error, off)")
	flags.String("store", "", "template store directory")

	root.AddCommand(
		newValidateCmd(a),
		newFieldsCmd(a),
		newRenderCmd(a),
		newStoreCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return root
}

// load resolves configuration for the running command and installs it as
// the global engine configuration.
func (a *app) load(cmd *cobra.Command) error {
	v, err := config.NewViper(a.cfgFile)
	if err != nil {
		return err
	}
	if err := v.BindPFlag(clause.KeyLogLevel, cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag(config.KeyStoreRoot, cmd.Flags().Lookup("store")); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	clause.SetGlobalConfig(cfg.Engine)
	a.cfg = cfg
	a.engine = clause.NewWithConfig(cfg.Engine)

	if cfg.File != "" {
		clause.Debug("Using config file: %s", cfg.File)
	}
	return nil
}

// engineFor returns the configured engine, or a strict copy of it.
func (a *app) engineFor(strict bool) *clause.Engine {
	if !strict || a.cfg.Engine.StrictMode {
		return a.engine
	}
	cfg := *a.cfg.Engine
	cfg.StrictMode = true
	return clause.NewWithConfig(&cfg)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "clause version %s\n", version)
			return nil
		},
	}
}

func checkFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
