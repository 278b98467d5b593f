/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "doctran",
	Short: "LLM document translation pipeline",
	Long: `Doctran translates long documents (plain text, gettext .po catalogs,
EPUB ebooks) through a staged LLM pipeline: entity and style extraction,
boundary-aware chunking, per-chunk translation, optional agent validation,
and format-aware reassembly.

Every intermediate result is stored as a session artifact, so runs are
resumable and observable with "doctran status".`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env if present; real environment variables win.
		_ = godotenv.Load()
		setupLogging()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "./data/doctran.db", "Database path (session registry, memory, glossary)")
	rootCmd.PersistentFlags().String("artifacts-dir", "./data/artifacts", "Local artifact directory")
	rootCmd.PersistentFlags().String("gcs-bucket", "", "Artifact bucket; overrides --artifacts-dir when set")
	rootCmd.PersistentFlags().String("credentials", "", "Google Cloud credentials file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	viper.SetEnvPrefix("DOCTRAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"db", "artifacts-dir", "gcs-bucket", "credentials", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func setupLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
