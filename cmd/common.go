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
	"os"

	"github.com/spf13/viper"

	"github.com/valpere/doctran/internal/artifact"
	"github.com/valpere/doctran/internal/generate"
	"github.com/valpere/doctran/internal/store"
)

// openArtifacts picks the artifact backend: the configured GCS bucket when
// set, the local filesystem otherwise.
func openArtifacts(ctx context.Context) (artifact.Store, error) {
	if bucket := viper.GetString("gcs-bucket"); bucket != "" {
		return artifact.NewGCSStore(ctx, bucket, viper.GetString("credentials"))
	}
	return artifact.NewFSStore(viper.GetString("artifacts-dir"))
}

// openRegistry opens the sqlite-backed registry database.
func openRegistry() (*store.Store, error) {
	db, err := store.New(viper.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// buildGenerator constructs the configured LLM provider. The Gemini key
// falls back to the conventional GEMINI_API_KEY variable. A local Ollama
// server is probed up front so a misconfigured endpoint fails before any
// pipeline work starts.
func buildGenerator(ctx context.Context, provider, model, baseURL string) (generate.Generator, error) {
	apiKey := viper.GetString("api-key")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	gen, err := generate.New(generate.Config{
		Provider: provider,
		Model:    model,
		APIKey:   apiKey,
		BaseURL:  baseURL,
	})
	if err != nil {
		return nil, err
	}
	if o, ok := gen.(*generate.Ollama); ok {
		if err := o.IsAvailable(ctx); err != nil {
			return nil, err
		}
	}
	return gen, nil
}
