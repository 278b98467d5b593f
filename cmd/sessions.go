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
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List translation sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		registry, err := openRegistry()
		if err != nil {
			return err
		}
		defer registry.Close()

		records, err := registry.ListSessions(ctx, sessionsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSOURCE\tTARGET\tSTAGE\tCHUNKS\tDONE\tUPDATED")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				rec.ID,
				filepath.Base(rec.SourceFile),
				rec.TargetLanguage,
				rec.Stage,
				rec.Snapshot.ChunksCreated,
				rec.Snapshot.TranslationsComplete,
				rec.UpdatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum sessions to show (0 = all)")
}
