package cmd

import (
	"fmt"

	"healthcheck_srv/internal/app"
	"healthcheck_srv/internal/catalog"
	"healthcheck_srv/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// env is what every subcommand works with once the root has loaded the config.
type env struct {
	configPath  string
	catalogPath string

	cfg    config.Config
	logger *logrus.Logger
}

// catalog loads the catalog, the --catalog flag taking precedence over config.
func (e *env) catalog() (*catalog.Catalog, error) {
	cfg := e.cfg.Catalog
	if e.catalogPath != "" {
		cfg.Path = e.catalogPath
	}
	return app.LoadCatalog(cfg, e.logger)
}

// NewRootCommand builds the healthcheck command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "healthcheck",
		Short: "Orion health check catalog and runner",
		Long: `Runs the Orion health check catalog against a SolarWinds server and
writes the results into an xlsx workbook, one sheet per module.

Queries go to SWIS by default; set executor.type to "sql" in the config
to query the Orion database directly.

Example usage:
  healthcheck catalog list
  healthcheck catalog show NPM
  healthcheck run --category NPM --category "Orion Core" --out npm.xlsx`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(e.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			e.cfg = cfg
			e.logger = app.NewLogger(cfg.Logging)
			e.logger.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (default: config.yaml in ., ./config, /etc/healthcheck)")
	root.PersistentFlags().StringVar(&e.catalogPath, "catalog", "", "catalog file replacing the embedded one")

	root.AddCommand(newCatalogCommand(e), newRunCommand(e))
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}
