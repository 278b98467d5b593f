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
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/doctran/internal/detector"
	"github.com/valpere/doctran/internal/glossary"
	"github.com/valpere/doctran/internal/pipeline"
	"github.com/valpere/doctran/internal/session"
	"github.com/valpere/doctran/internal/validate"
)

var (
	inputFile  string
	targetLang string
	sessionID  string

	provider    string
	model       string
	providerURL string
	temperature float64

	maxChunkSize int
	previewSize  int
	maxChunks    int
	concurrency  int

	noValidate    bool
	validatorURL  string
	protectMarkup bool
	languageCheck bool
	noMemory      bool

	entitiesFile string
	styleFile    string
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a document through the staged pipeline",
	Long: `Translate a document into the target language.

Supported inputs by extension:
  .txt   plain text
  .po    gettext catalog (untranslated and fuzzy entries are translated)
  .epub  EPUB ebook (reading-order text, markup preserved)

The pipeline extracts an entity dictionary and style instructions from the
document first (or takes them from --entities-file / --style-file), splits
the text at natural boundaries, translates chunks concurrently, optionally
has a review agent validate each chunk, and reassembles the result.

Examples:
  doctran translate -i book.txt -t uk
  doctran translate -i catalog.po -t pt-BR --model gemini-2.5-pro
  doctran translate -i novel.epub -t de --protect-markup --validator-url http://localhost:8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		data, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		sess, err := session.New(inputFile, targetLang)
		if err != nil {
			return err
		}
		if sessionID != "" {
			// Resuming reuses the artifact namespace of the earlier run.
			sess.ID = sessionID
		}
		sess.MaxChunkSize = maxChunkSize
		sess.MetadataPreviewSize = previewSize
		sess.MaxNumberOfChunks = maxChunks
		sess.Concurrency = concurrency
		sess.Model = model
		sess.Temperature = temperature
		sess.UseValidation = !noValidate
		sess.ProtectMarkup = protectMarkup

		artifacts, err := openArtifacts(ctx)
		if err != nil {
			return fmt.Errorf("failed to open artifact store: %w", err)
		}

		gen, err := buildGenerator(ctx, provider, model, providerURL)
		if err != nil {
			return err
		}

		opts := pipeline.Options{
			Artifacts: artifacts,
			Generator: gen,
			Logger:    slog.Default(),
		}
		if !noValidate && validatorURL != "" {
			opts.Validator = validate.NewAgent(validatorURL, model)
		}
		if languageCheck {
			opts.Detector = detector.New()
		}
		if !noMemory {
			registry, err := openRegistry()
			if err != nil {
				return err
			}
			defer registry.Close()
			opts.Registry = registry
		}

		p, err := pipeline.New(opts)
		if err != nil {
			return err
		}

		meta, err := loadMetadataFiles()
		if err != nil {
			return err
		}

		fmt.Printf("Session: %s\n", sess.ID)
		result, err := p.Run(ctx, sess, data, meta)
		if err != nil {
			return err
		}

		fmt.Printf("Final document: %s\n", result.FinalLocator)
		if result.AssembledLocator != "" {
			fmt.Printf("Assembled document: %s\n", result.AssembledLocator)
		}
		snap := result.Snapshot
		fmt.Printf("Chunks: %d  translated: %d  memory hits: %d\n",
			snap.ChunksCreated, snap.TranslationsComplete, snap.MemoryHits)
		if snap.ValidationsFellBack > 0 {
			fmt.Printf("Validation fallbacks: %d (chunks %v)\n", snap.ValidationsFellBack, snap.FallbackChunks)
		}
		if len(snap.LanguageWarnings) > 0 {
			fmt.Printf("Language warnings: chunks %v\n", snap.LanguageWarnings)
		}
		return nil
	},
}

// loadMetadataFiles reads caller-supplied metadata. Both files must be given
// for derivation to be skipped; the pipeline fills in anything incomplete.
func loadMetadataFiles() (*glossary.Metadata, error) {
	if entitiesFile == "" && styleFile == "" {
		return nil, nil
	}
	meta := &glossary.Metadata{}
	if entitiesFile != "" {
		data, err := os.ReadFile(entitiesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read entities file: %w", err)
		}
		meta.Entities = string(data)
	}
	if styleFile != "" {
		data, err := os.ReadFile(styleFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read style file: %w", err)
		}
		meta.Style = string(data)
	}
	return meta, nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input document (required)")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language, BCP 47 tag or name (required)")
	translateCmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session ID")

	translateCmd.Flags().StringVar(&provider, "provider", "gemini", "Generation provider (gemini, ollama, openrouter)")
	translateCmd.Flags().StringVar(&model, "model", "", "Model name (provider default if empty)")
	translateCmd.Flags().String("api-key", "", "Provider API key")
	translateCmd.Flags().StringVar(&providerURL, "provider-url", "", "Provider base URL (ollama, openrouter)")
	translateCmd.Flags().Float64Var(&temperature, "temperature", session.DefaultTemperature, "Generation temperature")

	translateCmd.Flags().IntVar(&maxChunkSize, "max-chunk-size", session.DefaultMaxChunkSize, "Maximum chunk size in characters")
	translateCmd.Flags().IntVar(&previewSize, "preview-size", session.DefaultMetadataPreviewSize, "Document preview size for metadata extraction")
	translateCmd.Flags().IntVar(&maxChunks, "max-chunks", 0, "Translate only the first N chunks (0 = all)")
	translateCmd.Flags().IntVar(&concurrency, "concurrency", session.DefaultConcurrency, "Concurrent chunk translations")

	translateCmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip the validation stage")
	translateCmd.Flags().StringVar(&validatorURL, "validator-url", "", "Review agent base URL (validation skipped if empty)")
	translateCmd.Flags().BoolVar(&protectMarkup, "protect-markup", false, "Replace ebook markup with placeholders during translation")
	translateCmd.Flags().BoolVar(&languageCheck, "language-check", false, "Warn when a final chunk does not look like the target language")
	translateCmd.Flags().BoolVar(&noMemory, "no-memory", false, "Disable translation memory and the session registry")

	translateCmd.Flags().StringVar(&entitiesFile, "entities-file", "", "Entity dictionary file (skips extraction)")
	translateCmd.Flags().StringVar(&styleFile, "style-file", "", "Style instructions file (skips extraction)")

	_ = viper.BindPFlag("api-key", translateCmd.Flags().Lookup("api-key"))

	translateCmd.MarkFlagRequired("input")
	translateCmd.MarkFlagRequired("target")
}
