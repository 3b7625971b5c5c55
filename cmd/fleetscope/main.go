// Command fleetscope discovers SSH hosts on the local network, inventories
// them and runs commands across the fleet.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/version"
)

const usage = `usage: fleetscope <command> [flags]

commands:
  serve      run the HTTP API
  scan       discover hosts and print them
  inventory  collect inventory from hosts
  license    check license expiry on hosts
  exec       run a command on hosts
  backup     archive the audit database and config
  restore    extract a backup archive
  token      issue a bearer token for the HTTP API
  version    print version information

Run "fleetscope <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		runServe(args)
	case "scan":
		runScan(args)
	case "inventory":
		runInventory(args)
	case "license":
		runLicense(args)
	case "exec":
		runExec(args)
	case "backup":
		runBackup(args)
	case "restore":
		runRestore(args)
	case "token":
		runToken(args)
	case "version", "-v", "--version":
		fmt.Println(version.Info())
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

// setup loads configuration and builds the logger every command shares.
func setup(configPath string) (*config.Config, *zap.Logger) {
	v, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	return config.New(v), logger
}

// newLogger builds a production zap logger at log.level. log.format
// "console" switches to the human-readable encoder.
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	if v.GetString("log.format") == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return cfg.Build()
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
}

// fatal prints err and exits non-zero.
func fatal(logger *zap.Logger, msg string, err error) {
	logger.Error(msg, zap.Error(err))
	_ = logger.Sync()
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
