package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tasksync/internal/config"
	"github.com/steveyegge/tasksync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path := configFile
		if path == "" {
			path = filepath.Join(config.DefaultConfigDir(), "config.toml")
		}
		if err := config.WriteFile(path, config.Defaults(), force); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		shown := *cfg
		if shown.Auth.Secret != "" {
			shown.Auth.Secret = "********"
		}

		text, err := config.Render(&shown)
		if err != nil {
			fatalf("%v", err)
		}

		if used := v.ConfigFileUsed(); used != "" {
			fmt.Println(ui.RenderMuted("# from " + used))
		} else {
			fmt.Println(ui.RenderMuted("# no config file; defaults and environment only"))
		}
		fmt.Print(text)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
