package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/convo/cmd/convo/cmds"
	"github.com/go-go-golems/convo/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "convo",
	Short: "convo talks to OpenAI compatible chat APIs",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// flags are parsed now, --log-level and co can take effect
		initLogger()
	},
	SilenceUsage: true,
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = log.Output(logWriter)

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return nil
}

func initCommands(rootCmd *cobra.Command, configPath string) error {
	viper.SetEnvPrefix("convo")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.convo")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/convo")
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// no config file, flags and environment only
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.Bool("with-caller", false, "Log caller")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Log file (default: stderr)")
	pf.String("config", "", "Path to config file (default ~/.convo/config.yaml)")
	pf.Bool("verbose", false, "Verbose output")

	pf.String(settings.KeyAPIKey, "", "API key")
	pf.String(settings.KeyBaseURL, settings.DefaultBaseURL, "API base URL")
	pf.String(settings.KeyOrganization, "", "OpenAI organization id")
	pf.String(settings.KeyTimeout, "60s", "Request timeout, 0 disables it")
	pf.Bool(settings.KeyAllowHTTP, false, "Allow plain http base URLs")
	pf.Bool(settings.KeyAllowLocalNetworks, false, "Allow base URLs on loopback and private networks")
	pf.Bool(settings.KeyDebug, false, "Log client internals at debug level")
	pf.String(settings.KeyModel, settings.DefaultModel, "Model")
	pf.Int(settings.KeyMaxModelTokens, settings.DefaultMaxModelTokens, "Context size of the model")
	pf.Int(settings.KeyMaxResponseTokens, settings.DefaultMaxResponseTokens, "Maximum tokens of a reply")
	pf.Bool(settings.KeyIncludeHistory, true, "Send previous messages of the conversation")
	pf.String(settings.KeySystemMessage, settings.DefaultSystemMessage, "System message")
	pf.Float64(settings.KeyTemperature, 0.8, "Sampling temperature")
	pf.Bool(settings.KeyMarkdown2HTML, false, "Convert replies from markdown to HTML")

	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" && len(os.Args) > idx+1 {
			configFile = os.Args[idx+1]
		}
	}

	err := initCommands(rootCmd, configFile)
	cobra.CheckErr(err)

	rootCmd.AddCommand(cmds.NewAskCommand())
	rootCmd.AddCommand(cmds.NewChatCommand())

	modelsCmd, err := cmds.NewModelsCommand()
	cobra.CheckErr(err)
	modelsCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(modelsCmd)
	cobra.CheckErr(err)
	rootCmd.AddCommand(modelsCobraCmd)

	tokensCmd, err := cmds.NewTokensCommand()
	cobra.CheckErr(err)
	rootCmd.AddCommand(tokensCmd)

	configCmd, err := cmds.NewConfigCommand()
	cobra.CheckErr(err)
	configCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(configCmd)
	cobra.CheckErr(err)
	rootCmd.AddCommand(configCobraCmd)
}
