package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"vectiler/internal/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve uploads and tiles over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.conf.Server.Addr
			}
			handler, err := api.New(a.svc, a.conf.Storage.Uploads, a.log)
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}

			exit := NewSafeExit()
			defer exit.Stop()
			exit.Register(a.svc.Abort)
			exit.Register(func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					a.log.Errorf("shutdown: %v", err)
				}
			})

			a.log.Infof("listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			a.log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen `address` (default server.addr)")
	return cmd
}
