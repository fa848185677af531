package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest6511/lockbox/internal/web"
	"github.com/forest6511/lockbox/pkg/audit"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Bind address (defaults to listen_addr from configuration)")
}

// serveCmd runs the loopback web interface until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web interface on loopback",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}

		addr := serveAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}
		if !isLoopback(addr) {
			color.Yellow("Warning: %s is not a loopback address; the vault will be reachable from the network", addr)
		}

		store.SetAudit(auditLog, audit.SourceWeb)

		sessions := web.NewSessionManager(cfg.IdleTimeout())
		sessions.StartJanitor(30 * time.Second)

		logger := log.New(os.Stderr, "lockbox: ", log.LstdFlags)
		srv := web.NewServer(addr, store, sessions, auditLog, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Sessions expire after %s of inactivity. Press Ctrl+C to stop.\n", cfg.IdleTimeout())
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
