package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skshohagmiah/kvquery/internal/kv"
	"github.com/skshohagmiah/kvquery/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			a.log.Info("kvq starting",
				zap.String("version", version),
				zap.String("device", a.cfg.Device.ID),
				zap.Bool("in_memory", a.cfg.Storage.InMemory),
				zap.String("data_dir", a.cfg.Storage.DataDir),
			)

			_, err = a.store.Subscribe(kv.SubscribeAll, kv.ObserverFunc(func(n kv.ChangeNotification) {
				a.log.Debug("change",
					zap.String("device", n.DeviceID),
					zap.Int("inserted", len(n.InsertEntries)),
					zap.Int("updated", len(n.UpdateEntries)),
					zap.Int("deleted", len(n.DeleteEntries)),
				)
			}))
			if err != nil {
				return err
			}

			srv := server.New(a.store, server.Options{
				Addr:    a.cfg.HTTP.Addr,
				Logger:  a.log,
				Metrics: a.metrics,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigChan:
				a.log.Info("shutting down", zap.Stringer("signal", sig))
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (env KVQ_HTTP_ADDR)")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if f := cmd.Flags().Lookup("addr"); f.Changed {
			return opts.v.BindPFlag("http.addr", f)
		}
		return nil
	}
	return cmd
}
