// Command macronode runs one node of the overlay: the OAP/1 listener, the
// content-addressed gateway, and the registry head, under a supervised
// restart tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/overlaymesh/ronet/internal/config"
	"github.com/overlaymesh/ronet/internal/obs"
	"github.com/overlaymesh/ronet/internal/rerr"
)

// nodeVersion is surfaced on /api/v1/status; /version serves
// gateway.Version instead. No -ldflags stamping is wired here, so it
// stays literal.
var nodeVersion = "0.1.0-dev"

const (
	exitClean         = 0
	exitUnhandled     = 1
	exitConfigInvalid = 2
	exitBindFailure   = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("macronode", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the TOML config file (overrides RON_CONFIG)")
	logLevel := flags.String("log-level", "info", "log level: trace|debug|info|warn|error")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitClean
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfigInvalid
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("RON_CONFIG")
	}

	logger := obs.NewLogger(*logLevel, "macronode")

	cfg, err := loadConfigWithFlags(path, flags)
	if err != nil {
		logger.WithError(err).Error("config load failed")
		return exitConfigInvalid
	}

	node, err := buildNode(cfg, path, logger)
	if err != nil {
		logger.WithError(err).Error("node init failed")
		if kind, ok := rerr.KindOf(err); ok && kind == rerr.KindConfig {
			return exitConfigInvalid
		}
		return exitUnhandled
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = node.Run(ctx)
	if err == nil {
		return exitClean
	}
	var be *bindError
	if errors.As(err, &be) {
		logger.WithError(err).Error("bind failure")
		return exitBindFailure
	}
	logger.WithError(err).Error("node exited with error")
	return exitUnhandled
}

// loadConfig re-reads the config file from disk, used by the admin reload
// hook. It carries no flag overrides since reload is triggered after
// startup, past the point flags apply.
func loadConfig(path string) (config.Config, error) {
	return config.Load(config.LoadOptions{FilePath: path})
}

func loadConfigWithFlags(path string, flags *pflag.FlagSet) (config.Config, error) {
	return config.Load(config.LoadOptions{FilePath: path, Flags: flags})
}
