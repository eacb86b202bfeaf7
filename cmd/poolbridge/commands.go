package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-pool/internal/bridges/screenlogic"
	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/logging"
)

// defaultSimulatorAddr is where `simulate` listens unless --addr is given.
const defaultSimulatorAddr = "127.0.0.1:8080"

// cliOptions holds the flags shared by every subcommand.
type cliOptions struct {
	configPath string
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals, which the tests rely on.
func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "poolbridge",
		Short: "ScreenLogic pool controller bridge for Gray Logic",
		Long: `Poolbridge talks to a Pentair ScreenLogic gateway over its binary TCP protocol.

The one-shot commands read or switch circuits and dump the controller
state. The run command starts the long-lived bridge: it keeps the device
catalogue in SQLite and publishes states and health over MQTT.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&opts.configPath, "config", getConfigPath(),
		"Path to the configuration file (env GRAYLOGIC_CONFIG)")

	root.AddCommand(
		newRunCmd(opts),
		newGetCmd(opts),
		newSetCmd(opts),
		newDataCmd(opts),
		newJSONCmd(opts),
		newSimulateCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadCLIConfig loads configuration for a one-shot command. Logs go to the
// command's stderr so stdout carries only the result.
func loadCLIConfig(cmd *cobra.Command, opts *cliOptions) (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr()), nil
}

// newOneShotBridge opens a bridge without MQTT or persistence.
func newOneShotBridge(cmd *cobra.Command, opts *cliOptions) (*screenlogic.Bridge, *logging.Logger, error) {
	cfg, log, err := loadCLIConfig(cmd, opts)
	if err != nil {
		return nil, nil, err
	}
	bridge, err := newBridge(cmd.Context(), cfg, log, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return bridge, log, nil
}

func newGetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <circuit-id>",
		Short: "Print the state of a circuit",
		Long: `Print the rendered state of one circuit ("On", "Off" or "Unknown").

Prints "error" when the circuit is not known to the controller or the
controller cannot be reached.`,
		Example: `  poolbridge get 505`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCircuitID(args[0])
			if err != nil {
				return err
			}
			bridge, _, err := newOneShotBridge(cmd, opts)
			if err != nil {
				return err
			}
			defer bridge.Stop()

			fmt.Fprintln(cmd.OutOrStdout(), bridge.GetCircuit(cmd.Context(), id))
			return nil
		},
	}
}

func newSetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <circuit-id> <0|1>",
		Short: "Switch a circuit off (0) or on (1)",
		Long: `Send a button press for one circuit and print its state once the
controller has acknowledged and status has been pulled again.`,
		Example: `  poolbridge set 505 1
  poolbridge set 500 0`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCircuitID(args[0])
			if err != nil {
				return err
			}
			state, err := parseCircuitState(args[1])
			if err != nil {
				return err
			}
			bridge, log, err := newOneShotBridge(cmd, opts)
			if err != nil {
				return err
			}
			defer bridge.Stop()

			ctx := cmd.Context()
			commandID := uuid.NewString()
			log.Info("sending circuit command", "command_id", commandID, "circuit", id, "state", state)
			if err := bridge.SetCircuitState(ctx, id, state); err != nil {
				return fmt.Errorf("command %s: %w", commandID, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), bridge.GetCircuit(ctx, id))
			return nil
		},
	}
}

func newDataCmd(opts *cliOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "data",
		Short: "Dump the full controller snapshot",
		Long: `Dump the gateway endpoint, firmware version, configuration and latest
status as JSON (default) or YAML.`,
		Example: `  poolbridge data
  poolbridge data --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown format %q (want json or yaml)", format)
			}
			bridge, _, err := newOneShotBridge(cmd, opts)
			if err != nil {
				return err
			}
			defer bridge.Stop()

			dump := dataDump{
				Gateway:  bridge.Endpoint(),
				Snapshot: bridge.Snapshot(cmd.Context()),
			}
			if format == "yaml" {
				return writeYAML(cmd.OutOrStdout(), dump)
			}
			return writeJSON(cmd.OutOrStdout(), dump)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Output format (json, yaml)")
	return cmd
}

// dataDump is the document printed by `data`.
type dataDump struct {
	Gateway  screenlogic.GatewayInfo `json:"gateway"`
	Snapshot screenlogic.Snapshot    `json:"snapshot"`
}

func newJSONCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "json",
		Short: "Print the flat device export",
		Long: `Print every device keyed by its lower-cased, underscore-joined name with
its id (switches and binary sensors), name and state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bridge, _, err := newOneShotBridge(cmd, opts)
			if err != nil {
				return err
			}
			defer bridge.Stop()

			out, err := bridge.ExportJSON(cmd.Context())
			if err != nil {
				return fmt.Errorf("exporting devices: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newSimulateCmd(opts *cliOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Serve a fake controller for local development",
		Long: `Serve the controller protocol from a sample pool and spa installation.

The simulator accepts the configured gateway password. Point the other
commands at it with GRAYLOGIC_GATEWAY_HOST and GRAYLOGIC_GATEWAY_PORT.`,
		Example: `  poolbridge simulate --addr 127.0.0.1:8080
  GRAYLOGIC_GATEWAY_HOST=127.0.0.1 GRAYLOGIC_GATEWAY_PORT=8080 poolbridge json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadCLIConfig(cmd, opts)
			if err != nil {
				return err
			}

			sim, err := screenlogic.NewSimulator(addr, screenlogic.SampleSnapshot(), screenlogic.SimulatorOptions{
				Password: cfg.Gateway.Password,
				Logger:   log.Component("simulator"),
			})
			if err != nil {
				return err
			}
			defer sim.Close() //nolint:errcheck // Best-effort on exit

			info := sim.GatewayInfo()
			log.Info("simulator listening", "address", info.Address(), "name", info.Name)
			fmt.Fprintln(cmd.OutOrStdout(), info.Address())

			<-cmd.Context().Done()
			log.Info("simulator stopping")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultSimulatorAddr, "Listen address")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "poolbridge %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// parseCircuitID parses a circuit id such as 505.
func parseCircuitID(s string) (int32, error) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid circuit id %q", s)
	}
	return int32(id), nil
}

// parseCircuitState parses the 0 or 1 argument of `set`.
func parseCircuitState(s string) (uint32, error) {
	switch s {
	case "0":
		return 0, nil
	case "1":
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: %q (want 0 or 1)", screenlogic.ErrInvalidState, s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML renders v as YAML using its JSON field names. The value is
// round-tripped through JSON so the two formats share one schema.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("converting snapshot: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("writing yaml: %w", err)
	}
	return enc.Close()
}
