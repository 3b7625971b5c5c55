package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/fleetscope/internal/backup"
	"github.com/HerbHall/fleetscope/internal/config"
)

func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	output := fs.String("output", "", "output file path (default: fleetscope-backup-{timestamp}.tar.gz)")
	configPath := fs.String("config", "", "config file to load and include in the archive")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	v, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	dbPath := config.New(v).Section("dispatch").String("audit_db", "fleetscope.db")

	if *output == "" {
		*output = fmt.Sprintf("fleetscope-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}

	if err := backup.Create(context.Background(), dbPath, usedConfigFile(v, *configPath), *output); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Backup created: %s\n", *output)
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	dir := fs.String("dir", ".", "directory to restore into")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fleetscope restore [-dir DIR] ARCHIVE")
		os.Exit(2)
	}

	names, err := backup.Restore(context.Background(), fs.Arg(0), *dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	for _, n := range names {
		fmt.Printf("Restored: %s\n", n)
	}
}

// usedConfigFile returns the config file viper read, if any.
func usedConfigFile(v *viper.Viper, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return v.ConfigFileUsed()
}
