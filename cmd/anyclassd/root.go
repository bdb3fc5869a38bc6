package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anyclass/anyclass"
	"github.com/anyclass/anyclass/pkg/store"
	"github.com/anyclass/anyclass/pkg/store/memstore"
	"github.com/anyclass/anyclass/pkg/store/pgstore"
	"github.com/anyclass/anyclass/pkg/store/sqlitestore"
	"github.com/anyclass/anyclass/pkg/store/wirestore"
)

var rootCmd = &cobra.Command{
	Use:   "anyclassd",
	Short: "schema-flexible document API server",
	Long: `anyclassd serves the AnyClass operation API over HTTP and WebSocket.

Records live in dynamically typed classes; the engine behind them is
configurable. Every flag can also be set through an environment variable
with the ANYCLASS_ prefix (e.g. ANYCLASS_ENGINE=sqlite), and a .env file
is loaded when present.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the anyclassd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("anyclassd v%s\n", anyclass.Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("engine", "memory", "storage engine (memory, sqlite, postgres, remote)")
	rootCmd.PersistentFlags().String("sqlite-path", "anyclass.db", "database file for the sqlite engine")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "connection string for the postgres engine")
	rootCmd.PersistentFlags().String("remote-url", "ws://127.0.0.1:8080/1/store", "WebSocket endpoint for the remote engine, usually another anyclassd's /1/store route")
	rootCmd.PersistentFlags().String("remote-codec", "json", "wire codec for the remote engine (json, cbor)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (json, console)")
	rootCmd.PersistentFlags().Bool("legacy-seed-record", false, "createTable persists its schema as one live record instead of declaring metadata")
	rootCmd.PersistentFlags().Bool("lenient-filters", false, "skip unknown filter operators instead of rejecting the request")

	rootCmd.AddCommand(serveCmd, consoleCmd, versionCmd)
}

func initConfig() {
	_ = godotenv.Load(".env")

	viper.SetEnvPrefix("anyclass")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlags hands the command's flags to viper so environment variables can
// override unset ones.
func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

// openEngine builds the configured store engine.
func openEngine(ctx context.Context, log zerolog.Logger) (store.Store, error) {
	switch engine := viper.GetString("engine"); engine {
	case "memory":
		return memstore.New(), nil
	case "sqlite":
		return sqlitestore.Open(viper.GetString("sqlite-path"))
	case "postgres":
		dsn := viper.GetString("postgres-dsn")
		if dsn == "" {
			return nil, fmt.Errorf("the postgres engine needs --postgres-dsn")
		}
		return pgstore.Open(dsn)
	case "remote":
		return wirestore.Connect(ctx, wirestore.Config{
			URL:    viper.GetString("remote-url"),
			Codec:  viper.GetString("remote-codec"),
			Logger: &log,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q (expected memory, sqlite, postgres or remote)", engine)
	}
}

// dispatcherOptions translates the mode flags into dispatcher options.
func dispatcherOptions(log zerolog.Logger) []anyclass.Option {
	opts := []anyclass.Option{anyclass.WithLogger(log)}
	if viper.GetBool("legacy-seed-record") {
		opts = append(opts, anyclass.WithLegacySeedRecord())
	}
	if viper.GetBool("lenient-filters") {
		opts = append(opts, anyclass.WithLenientFilters())
	}
	return opts
}
