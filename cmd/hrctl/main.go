package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ministry-hr/internal/cli"
	"ministry-hr/internal/config"
	"ministry-hr/internal/remote"
	"ministry-hr/internal/session"
	"ministry-hr/internal/telemetry"
	"ministry-hr/internal/tokenstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "hrctl:", err)
		os.Exit(1)
	}
}

func run() error {
	profile, err := config.LoadProfile(config.DefaultProfilePath())
	if err != nil {
		return err
	}
	logger := config.NewLogger(profile.LogLevel, "text")
	logger.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup("hrctl", logger)
	defer shutdownTracing(context.Background())

	var tokens session.KeyValue
	sqliteTokens, err := tokenstore.OpenSQLite(profile.TokenDB)
	if err != nil {
		logger.WithError(err).Warn("token store unavailable, session will not persist")
		tokens = tokenstore.NewMemory()
	} else {
		defer sqliteTokens.Close()
		tokens = sqliteTokens
	}

	client := remote.NewClient(profile.Server, remote.Options{Timeout: profile.Timeout()})
	sessions := session.NewService(client, tokens, session.Options{
		Timeout: profile.Timeout(),
		Logger:  logger,
	})
	return cli.New(sessions, client, cli.Options{}).Run(ctx, os.Args[1:])
}
