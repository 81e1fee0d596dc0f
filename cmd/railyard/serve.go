package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/railyard/railyard/internal/config"
	"github.com/railyard/railyard/internal/devserver"
	"github.com/railyard/railyard/internal/logging"
	"github.com/railyard/railyard/pkg/adapters/memory"
	"github.com/railyard/railyard/pkg/domain"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the development document-store server",
	Long: `Starts a self-contained document store with simulated node execution.
It serves the section REST API, pushes execution frames over /events,
and exposes Prometheus metrics on /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfgPath, _ := cmd.Flags().GetString("config")
		seed, _ := cmd.Flags().GetBool("seed")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		logger := logging.New(logging.ParseLevel(cfg.LogLevel))

		store := memory.NewStore()
		if seed {
			for _, section := range sampleSections() {
				if err := store.Save(cmd.Context(), section); err != nil {
					fmt.Printf("Error seeding store: %v\n", err)
					os.Exit(1)
				}
			}
		}

		server := devserver.New(store, devserver.WithLogger(logger))
		defer server.Close()

		srv := &http.Server{
			Addr:    cfg.Serve.Addr,
			Handler: server.Handler(prometheus.NewRegistry()),
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting Railyard dev server on %s\n", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("Railyard dev server stopped gracefully")
		}
	},
}

// sampleSections gives the dev server something to serve out of the box.
func sampleSections() []*domain.Section {
	return []*domain.Section{
		{
			ID:   "ingest",
			Name: "Ingest",
			Nodes: []*domain.Node{
				{ID: "fetch", Type: domain.NodeTypeInput, Label: "Fetch", ConnectedTo: []string{"clean"}},
				{ID: "clean", Type: domain.NodeTypeTransform, Label: "Clean", ConnectedFrom: []string{"fetch"}, ConnectedTo: []string{"publish"}},
				{ID: "publish", Type: domain.NodeTypeOutput, Label: "Publish", ConnectedFrom: []string{"clean"}},
			},
		},
		{
			ID:   "enrich",
			Name: "Enrich",
			Nodes: []*domain.Node{
				{ID: "read", Type: domain.NodeTypeInput, Label: "Read"},
				{ID: "score", Type: domain.NodeTypeScript, Label: "Score", Code: "score(row)"},
			},
		},
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("seed", true, "Seed the store with sample sections")
}
