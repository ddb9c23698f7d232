// Command tasks is a terminal client for a personal task list kept in sync
// with a remote repository, with a local cache for offline use.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/steveyegge/tasksync/internal/config"
	"github.com/steveyegge/tasksync/internal/logging"
	"github.com/steveyegge/tasksync/internal/ui"
)

var (
	configFile string
	verbose    bool

	// Resolved in PersistentPreRunE.
	v    *viper.Viper
	cfg  *config.Config
	sink *logging.Sink
)

var rootCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Personal task list synced to a remote repository",
	Long: `tasks keeps a personal task list in a remote repository and mirrors it
into a local cache, so the list stays readable when the remote is down.

Sign up or sign in first, then add, edit and complete tasks:
  tasks signup --email you@example.com
  tasks add "Pay rent" --due "next friday"
  tasks list
  tasks done <id>`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetColorProfile(ui.DetectProfile())

		v = config.NewViper(configFile)
		c, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = c

		sink = logging.Open(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Verbose:    verbose,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeSink()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: search the user config dir, then .)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log diagnostics to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "account", Title: "Account:"},
		&cobra.Group{ID: "tasks", Title: "Tasks:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
}

// closeSink flushes the log file. Safe to call more than once.
func closeSink() {
	if sink != nil {
		_ = sink.Close()
		sink = nil
	}
}

// fatalf reports err the way every command does and exits. os.Exit skips
// PersistentPostRun, so the log sink is closed here.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	closeSink()
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		closeSink()
		os.Exit(1)
	}
}
