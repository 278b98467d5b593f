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
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/doctran/internal/glossary"
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage the terminology glossary",
	Long: `Add, list, and delete terminology glossary entries.

Glossary entries pin specific source terms to a fixed target-language
rendering. They are merged into the entity dictionary of every translation
session for the same target language, so proper nouns, brand names, and
domain vocabulary stay consistent across documents.`,
}

var glossaryListTarget string

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List glossary entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openRegistry()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListGlossaryTerms(context.Background(), glossaryListTarget)
		if err != nil {
			return fmt.Errorf("failed to list glossary: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("Glossary is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTARGET LANG\tSOURCE TERM\tTARGET TERM\tCONTEXT")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.TargetLang, e.SourceTerm, e.TargetTerm, e.Context)
		}
		return w.Flush()
	},
}

var (
	glossaryAddTarget  string
	glossaryAddContext string
)

var glossaryAddCmd = &cobra.Command{
	Use:   "add <source-term> <target-term>",
	Short: "Add or update a glossary entry",
	Long: `Add a glossary entry mapping a source term to its target-language rendering.

Example:
  doctran glossary add "Kyiv" "Київ" --target uk`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if glossaryAddTarget == "" {
			return fmt.Errorf("--target language flag is required")
		}

		db, err := openRegistry()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.AddGlossaryTerm(context.Background(), glossaryAddTarget, args[0], args[1], glossaryAddContext); err != nil {
			return fmt.Errorf("failed to add glossary entry: %w", err)
		}
		fmt.Printf("Added: [%s] %q → %q\n", glossaryAddTarget, args[0], args[1])
		return nil
	},
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a glossary entry by ID",
	Long: `Delete a glossary entry by its ID (shown in "doctran glossary list").

Example:
  doctran glossary delete gl_1234567890123456789`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openRegistry()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteGlossaryTerm(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete glossary entry: %w", err)
		}
		fmt.Printf("Deleted glossary entry: %s\n", args[0])
		return nil
	},
}

var (
	glossarySuggestTarget string
	glossarySuggestSave   bool
)

var glossarySuggestCmd = &cobra.Command{
	Use:   "suggest <term>...",
	Short: "Suggest target renderings for terms via Cloud Translation",
	Long: `Look up machine-translation suggestions for one or more source terms.

Suggestions come from the Google Cloud Translation API and are meant as
a starting point for glossary curation; pass --save to store them
directly.

Example:
  doctran glossary suggest "widget" "flux capacitor" --target uk --save`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if glossarySuggestTarget == "" {
			return fmt.Errorf("--target language flag is required")
		}
		ctx := context.Background()

		suggester, err := glossary.NewSuggester(ctx, viper.GetString("credentials"))
		if err != nil {
			return fmt.Errorf("failed to create suggester: %w", err)
		}
		defer suggester.Close()

		suggestions, err := suggester.Suggest(ctx, args, glossarySuggestTarget)
		if err != nil {
			return fmt.Errorf("failed to get suggestions: %w", err)
		}

		terms := make([]string, 0, len(suggestions))
		for term := range suggestions {
			terms = append(terms, term)
		}
		sort.Strings(terms)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE TERM\tSUGGESTION")
		for _, term := range terms {
			fmt.Fprintf(w, "%s\t%s\n", term, suggestions[term])
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if !glossarySuggestSave {
			return nil
		}
		db, err := openRegistry()
		if err != nil {
			return err
		}
		defer db.Close()
		for _, term := range terms {
			if err := db.AddGlossaryTerm(ctx, glossarySuggestTarget, term, suggestions[term], "machine suggestion"); err != nil {
				return fmt.Errorf("failed to save suggestion for %q: %w", term, err)
			}
		}
		fmt.Printf("Saved %d entries.\n", len(terms))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	glossaryListCmd.Flags().StringVarP(&glossaryListTarget, "target", "t", "", "Filter by target language code (e.g. uk)")

	glossaryAddCmd.Flags().StringVarP(&glossaryAddTarget, "target", "t", "", "Target language code (e.g. uk)")
	glossaryAddCmd.Flags().StringVar(&glossaryAddContext, "context", "", "Usage note stored with the entry")

	glossarySuggestCmd.Flags().StringVarP(&glossarySuggestTarget, "target", "t", "", "Target language code (e.g. uk)")
	glossarySuggestCmd.Flags().BoolVar(&glossarySuggestSave, "save", false, "Store the suggestions in the glossary")

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
	glossaryCmd.AddCommand(glossarySuggestCmd)
}
