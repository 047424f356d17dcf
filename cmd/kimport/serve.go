package main

import (
	"errors"
	"log"
	"net/http"

	"github.com/pevans/kimport/api"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP bridge",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	store, err := a.openSources()
	if err != nil {
		return err
	}
	defer store.Close()

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.API.Addr
	}

	server := api.NewServer(a.importer, api.WithSources(store), api.WithConfig(a.cfg))
	router := server.SetupRouter()

	log.Printf("INFO: Starting API server on %s", addr)
	log.Printf("INFO: Vault: %s", a.vault.Dir())
	if err := router.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
