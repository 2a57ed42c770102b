package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/service"
)

const envPrefix = "FORMPILOT"

// app carries the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	seed    string
	cfg     *config.Config
	factory service.ComponentFactory

	// bindings maps config keys to flag names per command. Only the bindings of
	// the command that runs are applied, so commands can share keys.
	bindings map[*cobra.Command]map[string]string
}

// NewRootCmd builds the command tree with factory as the composition root.
func NewRootCmd(factory service.ComponentFactory) *cobra.Command {
	a := &app{
		v:        viper.New(),
		factory:  factory,
		bindings: make(map[*cobra.Command]map[string]string),
	}
	config.SetDefaults(a.v)

	rootCmd := &cobra.Command{
		Use:     "formpilot",
		Short:   "formpilot fills in and submits contact forms for outreach batches.",
		Version: Version,
		// Usage on every runtime error buries the message.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.seed, "seed", "", "JSON seed for the in-memory store, used when no database is configured")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newWorkCmd(a),
		newDispatchCmd(a),
		newStatusCmd(a),
		newTagsCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI with the production component factory.
func Execute(ctx context.Context) error {
	err := NewRootCmd(service.NewComponentFactory()).ExecuteContext(ctx)
	if err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	return err
}

// bind registers a flag of cmd as the source of a config key.
func (a *app) bind(cmd *cobra.Command, key, flag string) {
	if a.bindings[cmd] == nil {
		a.bindings[cmd] = make(map[string]string)
	}
	a.bindings[cmd][key] = flag
}

// initialize reads the config file and environment, applies the running command's
// flags and sets up the global logger.
func (a *app) initialize(cmd *cobra.Command) error {
	if err := a.readConfig(); err != nil {
		return err
	}
	for key, name := range a.bindings[cmd] {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "formpilot"})
		return err
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger())
	observability.GetLogger().Debug("Starting formpilot", zap.String("version", Version), zap.String("command", cmd.Name()))
	return nil
}

// readConfig reads in the config file and ENV variables if set.
func (a *app) readConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// requireOwner returns the configured owner id or an error naming both sources.
func (a *app) requireOwner() (string, error) {
	owner := a.cfg.Engine().OwnerID
	if owner == "" {
		return "", fmt.Errorf("owner id is required (--owner or %s_ENGINE_OWNER_ID)", envPrefix)
	}
	return owner, nil
}
