package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"
)

var (
	cfgFile string
	envFile string
	debug   bool
	console bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "Atomic two-DEX flash loan arbitrage engine",
	Long: `flasharb borrows a token through a flash loan, buys on one DEX, sells
on another and repays in the same atomic execution. Any failure rolls
back every balance change.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	PersistentPostRun: func(*cobra.Command, []string) { utils.CleanupLogger() },
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with ARB_* overrides")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&console, "console", false, "human-readable log output")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	envErr := config.LoadEnv(envFile)

	loaded, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	log := utils.InitLogger(utils.LoggerOptions{
		Debug:   debug,
		LogFile: cfg.LogFile,
		Console: console,
	})
	if envErr != nil {
		log.Debug("No dotenv file loaded", zap.String("file", envFile), zap.Error(envErr))
	}
	return nil
}

// newBot deploys the configured world
func newBot(cmd *cobra.Command) (*bot.Bot, error) {
	b, err := bot.New(cmd.Context(), cfg, utils.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return b, nil
}
