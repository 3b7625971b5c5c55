package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

var errNoSecret = errors.New("server.auth_secret is not set")

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	subject := fs.String("subject", "operator", "token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	auth, err := serverAuth(cfg)
	if err == nil && auth == nil {
		err = errNoSecret
	}
	if err != nil {
		fatal(logger, "cannot issue token", err)
	}
	token, err := auth.Issue(*subject, *ttl)
	if err != nil {
		fatal(logger, "cannot issue token", err)
	}
	fmt.Println(token)
}
