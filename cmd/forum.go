package cmd

import (
	"errors"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/config"
)

var (
	log *zap.Logger

	cfgFile string
)

// Forum is the root command of the forum backend.
func Forum() *cobra.Command {
	cmd := &cobra.Command{
		Use:   config.Application,
		Short: config.ApplicationFull,
		Long: `
Reads discussion threads, spam flags and reputation proofs from the Ergo
explorer, scores them, and submits comments through an Ergo node wallet.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./forum.yaml, $HOME/.forum/forum.yaml or /etc/forum/forum.yaml)")

	cmd.AddCommand(serveCommand())
	cmd.AddCommand(threadsCommand())
	cmd.AddCommand(spamCommand())
	cmd.AddCommand(profileCommand())
	cmd.AddCommand(reputationCommand())

	return cmd
}

func Execute() error {
	return Forum().Execute()
}

func initConfig() error {
	// a missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(config.Application)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.forum")
		viper.AddConfigPath("/etc/forum")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return err
		}
	}

	return nil
}
