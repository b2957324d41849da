package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/huddle/internal/config"
	"github.com/zjrosen/huddle/internal/log"
)

func init() {
	// Query the terminal background before any Bubble Tea program starts so
	// the OSC 11 response cannot race with the program's input loop.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version     = "dev"
	cfgFile     string
	debugFlag   bool
	metricsAddr string
	cfg         config.Config

	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "A terminal client for realtime multi-channel chat",
	Long: `huddle keeps one realtime connection to a chat backend, subscribes to the
configured channels and streams their messages, presence and direct messages.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .huddle/config.yaml, then ~/.config/huddle/config.yaml)")
	pf.BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs to log_file (or set HUDDLE_DEBUG)")
	pf.StringVar(&metricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address, e.g. :9464")

	_ = viper.BindPFlag("debug", pf.Lookup("debug"))
	_ = viper.BindPFlag("metrics.addr", pf.Lookup("metrics-addr"))
}

func initConfig() {
	// A missing .env is the common case.
	_ = godotenv.Load(".env")

	setDefaults(viper.GetViper(), config.Defaults())
	viper.SetEnvPrefix("HUDDLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .huddle/config.yaml (current directory)
		// 2. ~/.config/huddle/config.yaml (user config)
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			viper.SetConfigFile(config.DefaultConfigPath)
		} else {
			if dir := config.UserConfigDir(); dir != "" {
				viper.AddConfigPath(dir)
			}
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if writeErr := config.WriteDefaultConfig(config.DefaultConfigPath); writeErr == nil {
				viper.SetConfigFile(config.DefaultConfigPath)
				_ = viper.ReadInConfig()
			}
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// setDefaults registers every key so environment variables can override
// keys absent from the config file.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.api_url", d.Server.APIURL)
	v.SetDefault("auth.token", d.Auth.Token)
	v.SetDefault("auth.username", d.Auth.Username)
	v.SetDefault("channels", d.Channels)
	v.SetDefault("history.limit", d.History.Limit)
	v.SetDefault("session.buffer_size", d.Session.BufferSize)
	v.SetDefault("session.push_timeout", d.Session.PushTimeout)
	v.SetDefault("session.heartbeat_interval", d.Session.HeartbeatInterval)
	v.SetDefault("session.reconnect_backoff", d.Session.ReconnectBackoff)
	v.SetDefault("session.typing_interval", d.Session.TypingInterval)
	v.SetDefault("session.roster_ttl", d.Session.RosterTTL)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("log_file", d.LogFile)
}

func setupLogging(*cobra.Command, []string) error {
	if !cfg.Debug && os.Getenv("HUDDLE_DEBUG") == "" {
		return nil
	}
	logPath := cfg.LogFile
	if logPath == "" {
		logPath = "debug.log"
	}
	if dir := filepath.Dir(logPath); dir != "." {
		_ = os.MkdirAll(dir, 0o750)
	}
	cleanup, err := log.Init(logPath)
	if err != nil {
		return err
	}
	logCleanup = cleanup
	log.Info(log.CatConfig, "huddle starting", "version", version, "config", viper.ConfigFileUsed())
	return nil
}

// configPath is where channel list changes are persisted.
func configPath() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	return config.DefaultConfigPath
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
