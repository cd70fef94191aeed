// Package config collects command line, environment and config file options.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ModeRun         = "run"
	ModeCheck       = "check"
	ModeClient      = "client"
	ModeParticipant = "participant"

	EnvPrefix = "TPC"
)

var ErrInvalidOption = errors.New("invalid option")

type Options struct {
	SendSuccessProbability      float64
	OperationSuccessProbability float64
	NumClients                  uint32
	NumRequests                 uint32
	NumParticipants             uint32
	Verbosity                   int
	Mode                        string
	LogPath                     string
	IPCPath                     string
	Num                         uint32
	Seed                        int64
	LogFormat                   string
	MetricsAddr                 string
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.Float64P("send_success_probability", "S", 1.0, "Probability participants successfully send messages")
	fs.Float64P("operation_success_probability", "s", 1.0, "Probability participants successfully execute requests")
	fs.Uint32P("num_clients", "c", 3, "Number of clients making requests")
	fs.Uint32P("num_participants", "p", 3, "Number of participants in protocol")
	fs.Uint32P("num_requests", "r", 15, "Number of requests made per client")
	fs.IntP("verbosity", "v", 0, "Output verbosity: 0->errors only, 5->everything")
	fs.StringP("log_path", "l", "./logs/", "Directory where operation logs are stored")
	fs.StringP("mode", "m", ModeRun, `Mode: "run" drives a run and checks it, "check" checks logs of a previous run`)
	fs.String("ipc_path", "none", "Path for IPC socket (unused by the in-process runner)")
	fs.Uint32("num", 0, "Participant / client number for naming log files")
	fs.Int64("seed", 0, "Random seed for the in-process runner, 0 picks one from the clock")
	fs.String("log_format", "console", `Diagnostic log format: "console" or "json"`)
	fs.String("metrics_addr", "", "Serve Prometheus metrics on this address, empty disables")
	fs.String("config", "", "Optional config file (yaml, toml or json)")
	return fs
}

// Load parses args, then layers TPC_* environment variables and an optional
// config file underneath them. Flags given explicitly always win.
func Load(args []string) (*Options, error) {
	fs := newFlagSet("tpc")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	opts := &Options{
		SendSuccessProbability:      v.GetFloat64("send_success_probability"),
		OperationSuccessProbability: v.GetFloat64("operation_success_probability"),
		NumClients:                  v.GetUint32("num_clients"),
		NumRequests:                 v.GetUint32("num_requests"),
		NumParticipants:             v.GetUint32("num_participants"),
		Verbosity:                   v.GetInt("verbosity"),
		Mode:                        strings.ToLower(v.GetString("mode")),
		LogPath:                     v.GetString("log_path"),
		IPCPath:                     v.GetString("ipc_path"),
		Num:                         v.GetUint32("num"),
		Seed:                        v.GetInt64("seed"),
		LogFormat:                   v.GetString("log_format"),
		MetricsAddr:                 v.GetString("metrics_addr"),
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *Options) Validate() error {
	if o.SendSuccessProbability < 0 || o.SendSuccessProbability > 1 {
		return fmt.Errorf("%w: send_success_probability %v not in [0, 1]", ErrInvalidOption, o.SendSuccessProbability)
	}
	if o.OperationSuccessProbability < 0 || o.OperationSuccessProbability > 1 {
		return fmt.Errorf("%w: operation_success_probability %v not in [0, 1]", ErrInvalidOption, o.OperationSuccessProbability)
	}
	if o.LogPath == "" {
		return fmt.Errorf("%w: log_path is empty", ErrInvalidOption)
	}

	switch o.Mode {
	case ModeRun, ModeCheck:
		return nil
	case ModeClient, ModeParticipant:
		return fmt.Errorf("%w: mode %q needs a spawned process, use %q", ErrInvalidOption, o.Mode, ModeRun)
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidOption, o.Mode)
	}
}

// Args renders the options back into command line arguments accepted by Load.
func (o *Options) Args() []string {
	args := []string{
		fmt.Sprintf("-S%v", o.SendSuccessProbability),
		fmt.Sprintf("-s%v", o.OperationSuccessProbability),
		fmt.Sprintf("-c%d", o.NumClients),
		fmt.Sprintf("-r%d", o.NumRequests),
		fmt.Sprintf("-p%d", o.NumParticipants),
		fmt.Sprintf("-v%d", o.Verbosity),
		fmt.Sprintf("-m%s", o.Mode),
		fmt.Sprintf("-l%s", o.LogPath),
		fmt.Sprintf("--ipc_path=%s", o.IPCPath),
		fmt.Sprintf("--num=%d", o.Num),
		fmt.Sprintf("--seed=%d", o.Seed),
		fmt.Sprintf("--log_format=%s", o.LogFormat),
	}
	if o.MetricsAddr != "" {
		args = append(args, fmt.Sprintf("--metrics_addr=%s", o.MetricsAddr))
	}
	return args
}
