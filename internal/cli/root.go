package cli

import (
	"fmt"
	"strings"

	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	envFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jibby",
		Short: "Jibby routes messages between customers and an AI responder",
		Long: "Jibby connects WhatsApp, SMS, voice, social and email channels to an AI responder\n" +
			"and exposes them through a REST and WebSocket gateway.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			env := envFile
			if env == "" {
				env = paths.Env
			}
			if err := config.LoadDotEnv(env); err != nil {
				return err
			}
			switch {
			case logLevel == "":
				log = logging.New(nil, "info")
			case logging.ValidLevel(logLevel):
				log = logging.New(nil, logLevel)
			default:
				return fmt.Errorf("invalid --log-level %q (want one of %s)", logLevel, strings.Join(logging.Levels, ", "))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.jibby/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", ".env file to load (default ~/.jibby/.env)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides logging.level in the config)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMessageCmd())
	cmd.AddCommand(newCallCmd())
	cmd.AddCommand(newAskCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads the config file and reports validation issues.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, &config.ValidationError{Issues: issues}
	}
	if logLevel == "" {
		log = logging.NewWithFormat(nil, cfg.Logging.Level, cfg.Logging.Format)
	}
	return cfg, nil
}
