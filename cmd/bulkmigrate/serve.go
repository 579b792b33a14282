package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/leandro-jm/bulk-migration/internal/jobstore"
	"github.com/leandro-jm/bulk-migration/internal/server"
	"github.com/leandro-jm/bulk-migration/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP+WebSocket presentation layer",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := ":8081"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}
	jobDB := os.Getenv("JOBSTORE_DSN")
	if jobDB == "" {
		return fmt.Errorf("JOBSTORE_DSN is required to serve the HTTP surface")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, jobDB)
	if err != nil {
		return fmt.Errorf("opening job store pool: %w", err)
	}
	defer pool.Close()

	hub := websocket.NewHub()
	store := jobstore.NewPgStore(pool)
	conns := jobstore.NewConnectionStore(pool)
	presets := jobstore.NewPresetStore(pool)
	logger := log.New(os.Stderr, "", log.LstdFlags)

	srv := server.New(hub, store, conns, presets, logger)

	logger.Printf("listening on %s", addr)
	return http.ListenAndServe(addr, srv.Routes())
}
