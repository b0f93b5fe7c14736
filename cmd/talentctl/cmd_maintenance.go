package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"talent-source/internal/app"
	"talent-source/utils"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing DynamoDB tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			if err := a.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tables ready")
			return nil
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the skill embedding index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			_, err := a.Reindex(cmd.Context())
			return err
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the API without graceful draining",
	Long: `Serve the JSON API on ADDR. Intended for quick checks against a
local DynamoDB; cmd/local is the long-running server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			srv := &http.Server{Addr: cfg.Addr, Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				_ = srv.Close()
			}()
			utils.Logger().Info("listening", zap.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	},
}
