// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/bassosimone/framewire"
	"github.com/bassosimone/framewire/httpapi"
	"github.com/spf13/cobra"
)

// globalFlags are the flags shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "framewire",
		Short:         "Probe framed TCP protocols",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "TOML configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.AddCommand(
		newProbeCommand(flags),
		newRemoteCommand(flags),
		newServeCommand(flags),
		newSimpleServerCommand(flags),
	)
	return root
}

// load returns the configuration and a JSON logger writing to the
// command standard error.
func (f *globalFlags) load(cmd *cobra.Command) (appConfig, framewire.SLogger, error) {
	cfg, err := loadAppConfig(f.configPath)
	if err != nil {
		return appConfig{}, nil, err
	}
	if f.logLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(f.logLevel)); err != nil {
			return appConfig{}, nil, fmt.Errorf("--log-level: %w", err)
		}
	}
	handler := slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel})
	return cfg, slog.New(handler), nil
}

// probeFlags are the flags describing a single probe.
type probeFlags struct {
	params  map[string]string
	port    uint16
	timeout time.Duration
	tls     bool
}

func (f *probeFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint16Var(&f.port, "port", 0, "target port (default: the protocol port)")
	cmd.Flags().BoolVar(&f.tls, "tls", false, "wrap the connection in TLS")
	cmd.Flags().DurationVar(&f.timeout, "timeout", httpapi.DefaultTimeoutMs*time.Millisecond, "probe timeout")
	cmd.Flags().StringToStringVar(&f.params, "param", nil, "protocol parameter as key=value")
}

func (f *probeFlags) request(host string) httpapi.Request {
	return httpapi.Request{
		Host:      host,
		Port:      f.port,
		TimeoutMs: f.timeout.Milliseconds(),
		TLS:       f.tls,
		Params:    f.params,
	}
}

func newProbeCommand(flags *globalFlags) *cobra.Command {
	pflags := &probeFlags{}
	probes := httpapi.DefaultProbes(framewire.NewWeakRandomUnseeded())
	cmd := &cobra.Command{
		Use:       "probe PROTOCOL HOST",
		Short:     "Run a probe and print its JSON result",
		Args:      cobra.ExactArgs(2),
		ValidArgs: slices.Sorted(maps.Keys(probes)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}
			factory, found := probes[args[0]]
			if !found {
				return fmt.Errorf("unknown protocol %q", args[0])
			}
			fwcfg := cfg.framewireConfig()
			probe, err := factory.NewProbe(fwcfg, pflags.request(args[1]), logger)
			if err != nil {
				return err
			}
			result := framewire.Run(cmd.Context(), probe, fwcfg.TimeNow)
			return printResult(cmd, result, result.OK)
		},
	}
	pflags.register(cmd)
	return cmd
}

func newRemoteCommand(flags *globalFlags) *cobra.Command {
	pflags := &probeFlags{}
	var api string
	cmd := &cobra.Command{
		Use:   "remote PROTOCOL HOST",
		Short: "Ask a framewire API server to run a probe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}
			endpoint, err := parseEndpoint(api)
			if err != nil {
				return fmt.Errorf("--api: %w", err)
			}
			client := httpapi.NewClient(cfg.framewireConfig(), endpoint, logger)
			result, _, err := client.Probe(cmd.Context(), args[0], pflags.request(args[1]))
			if err != nil {
				return err
			}
			return printResult(cmd, result, result.OK)
		},
	}
	pflags.register(cmd)
	cmd.Flags().StringVar(&api, "api", "127.0.0.1:8080", "address of the API server")
	return cmd
}

// printResult writes v as indented JSON and fails when ok is false.
func printResult(cmd *cobra.Command, v any, ok bool) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("probe failed")
	}
	return nil
}

func parseEndpoint(address string) (framewire.Endpoint, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return framewire.Endpoint{}, err
	}
	number, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return framewire.Endpoint{}, fmt.Errorf("invalid port %q", port)
	}
	return framewire.Endpoint{Host: host, Port: uint16(number)}, nil
}
