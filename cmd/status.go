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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the progress of a translation session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		registry, err := openRegistry()
		if err != nil {
			return err
		}
		defer registry.Close()

		rec, err := registry.GetSession(ctx, args[0])
		if err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}

		snap := rec.Snapshot
		fmt.Printf("Session:    %s\n", rec.ID)
		fmt.Printf("Source:     %s\n", rec.SourceFile)
		fmt.Printf("Target:     %s\n", rec.TargetLanguage)
		if rec.Model != "" {
			fmt.Printf("Model:      %s\n", rec.Model)
		}
		fmt.Printf("Stage:      %s\n", rec.Stage)
		fmt.Printf("Updated:    %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Println()
		fmt.Printf("Chunks:       %d", snap.ChunksCreated)
		if snap.Truncated {
			fmt.Printf(" (truncated from %d)", snap.TruncatedFrom)
		}
		fmt.Println()
		fmt.Printf("Prompts:      %d\n", snap.PromptsBuilt)
		fmt.Printf("Translated:   %d", snap.TranslationsComplete)
		if snap.MemoryHits > 0 {
			fmt.Printf(" (%d from memory)", snap.MemoryHits)
		}
		fmt.Println()
		fmt.Printf("Validated:    %d\n", snap.ValidationsComplete)
		if snap.ValidationsFellBack > 0 {
			fmt.Printf("Fallbacks:    %d %v\n", snap.ValidationsFellBack, snap.FallbackChunks)
		}
		if len(snap.LanguageWarnings) > 0 {
			fmt.Printf("Lang warns:   %v\n", snap.LanguageWarnings)
		}
		if snap.LastError != "" {
			fmt.Printf("Last error:   %s\n", snap.LastError)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the full record as JSON")
}
