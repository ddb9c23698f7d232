package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tasksync/internal/export"
	"github.com/steveyegge/tasksync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "tasks",
	Short:   "Write all tasks as JSON, YAML or TOML",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		formatName, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		offline, _ := cmd.Flags().GetBool("offline")

		format, err := export.ParseFormat(formatName)
		if err != nil {
			fatalf("%v", err)
		}

		a, id, st := loadCollection(cmd.Context(), offline)
		defer a.Close()

		if w := syncWarning(st); w != "" {
			fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarn("⚠"), w)
		}

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				a.Close()
				fatalf("failed to create %s: %v", output, err)
			}
			defer f.Close()
			w = f
		}

		if err := export.Write(w, format, id.UserID, st.Tasks); err != nil {
			a.Close()
			fatalf("%v", err)
		}
		if output != "" {
			fmt.Fprintf(os.Stderr, "%s Exported %d task(s) to %s\n", ui.RenderPass("✓"), len(st.Tasks), output)
		}
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "json", "Output format: json, yaml or toml")
	exportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	exportCmd.Flags().Bool("offline", false, "Export the cached list without contacting the remote")
	rootCmd.AddCommand(exportCmd)
}
