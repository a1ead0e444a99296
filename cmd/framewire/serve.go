// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bassosimone/framewire"
	"github.com/bassosimone/framewire/httpapi"
	"github.com/bassosimone/framewire/protocols/simple"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the graceful shutdown of the API server.
const shutdownTimeout = 5 * time.Second

func newServeCommand(flags *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the probe API over HTTP/1.1 and cleartext HTTP/2",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			listener, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return err
			}
			probes := httpapi.DefaultProbes(framewire.NewWeakRandomUnseeded())
			handler := httpapi.NewHandler(cfg.framewireConfig(), probes, logger)
			return serveAPI(cmd.Context(), listener, handler, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: the configured one)")
	return cmd
}

// serveAPI serves handler on listener until ctx is done.
func serveAPI(ctx context.Context, listener net.Listener, handler http.Handler, logger framewire.SLogger) error {
	srv := httpapi.NewServer(listener.Addr().String(), handler)
	logger.Info("apiListening", slog.String("localAddr", listener.Addr().String()))

	errch := make(chan error, 1)
	go func() {
		errch <- srv.Serve(listener)
	}()

	select {
	case err := <-errch:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errch; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newSimpleServerCommand(flags *globalFlags) *cobra.Command {
	var (
		host       string
		portOffset int
	)
	cmd := &cobra.Command{
		Use:   "simple-server",
		Short: "Serve echo, discard, daytime, chargen, time and finger",
		Long: `Serve the RFC simple services, each on its well-known port plus the
configured offset (e.g., echo on 10007 with the default offset).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.SimpleHost = host
			}
			if cmd.Flags().Changed("port-offset") {
				cfg.PortOffset = portOffset
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			listeners, err := listenSimple(cfg)
			if err != nil {
				return err
			}
			return serveSimple(cmd.Context(), listeners, cfg.Users, logger)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default: the configured one)")
	cmd.Flags().IntVar(&portOffset, "port-offset", 0, "offset added to the well-known ports")
	return cmd
}

// listenSimple opens the listener of every simple service.
func listenSimple(cfg appConfig) (map[string]net.Listener, error) {
	listeners := make(map[string]net.Listener)
	for name, port := range simple.Ports {
		address := net.JoinHostPort(cfg.SimpleHost, strconv.Itoa(cfg.PortOffset+int(port)))
		listener, err := net.Listen("tcp", address)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		listeners[name] = listener
	}
	return listeners, nil
}

// serveSimple serves every simple service until ctx is done or one fails.
func serveSimple(ctx context.Context, listeners map[string]net.Listener,
	users map[string]string, logger framewire.SLogger) error {
	services := simple.Services(users)
	group, ctx := errgroup.WithContext(ctx)
	for name, listener := range listeners {
		srv := simple.NewServer(name, services[name], logger)
		logger.Info("simpleListening", slog.String("localAddr", listener.Addr().String()), slog.String("service", name))
		group.Go(func() error {
			return srv.Serve(ctx, listener)
		})
	}
	return group.Wait()
}
