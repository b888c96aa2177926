package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-convo/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Run:   runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8787)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")

	a := mustOpen(cmd)
	defer a.Close()

	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	srv := server.NewServer(a.store, a.registry, a.log)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server_starting", "addr", addr, "backend", a.cfg.Storage.Backend)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		a.log.Info("server_stopping", "signal", sig.String())
	case err := <-errCh:
		a.log.Error("server_failed", "error", err)
		a.Close()
		exitErr("serve", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.log.Error("server_shutdown_failed", "error", err)
	}
}
