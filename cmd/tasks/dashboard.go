package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tasksync/internal/config"
	"github.com/steveyegge/tasksync/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Serve the task list to browsers over WebSocket",
	Long: `Start a local WebSocket server that streams the task store's state.

Every change to the list is pushed to connected clients:
- state: the full task list, selection, loading flag and last error
- stats: totals by completion, overdue count and data source
- sync_complete: a sync requested through POST /sync finished

Example usage:
  tasks dashboard                 # Start on the configured port (8090)
  tasks dashboard --port 9000     # Start on a custom port

Connect with a WebSocket client:
  ws://localhost:8090/ws`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := mustApp(ctx)
		defer a.Close()
		a.mustSignedIn()

		logger := sink.Logger("dashboard")
		server := dashboard.NewServer(a.store, &dashboard.Config{
			Port:   port,
			Logger: logger,
		})
		if err := server.Start(); err != nil {
			a.Close()
			fatalf("failed to start dashboard: %v", err)
		}

		if v.ConfigFileUsed() != "" {
			config.Watch(v, config.DefaultDebounce, sink.Logger("config"), func(c *config.Config) {
				if c.Dashboard.Port != port {
					logger.Printf("dashboard.port changed to %d; restart to apply", c.Dashboard.Port)
				}
			})
		}

		addr := server.GetAddr()
		fmt.Printf("Dashboard server started on http://%s\n", addr)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
		fmt.Printf("Health check: http://%s/health\n", addr)
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			a.Close()
			fatalf("during shutdown: %v", err)
		}
		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8090, "Port to listen on (default: dashboard.port from config)")
	rootCmd.AddCommand(dashboardCmd)
}
