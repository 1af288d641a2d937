package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/adminserver"
	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/storage/adminstore"
)

type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }
func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	adminPort    = flag.Int("port", 0, "Admin HTTP port (overrides config)")
	adminHost    = flag.String("host", "", "Admin HTTP host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("automation-admin version %s\n", common.GetVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("automation-admin.toml"); err == nil {
			configFiles = append(configFiles, "automation-admin.toml")
		} else if _, err := os.Stat("deployments/local/automation-admin.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/automation-admin.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	// The admin binary's own HTTP surface is config.Admin.Port/Host, not
	// config.Server.*; ApplyFlagOverrides targets config.Server, so apply
	// the admin-specific flag overrides directly.
	if *adminPort > 0 {
		config.Admin.Port = *adminPort
	}
	if *adminHost != "" {
		config.Admin.Host = *adminHost
	}

	common.InstallCrashHandler(config.Admin.DBPath + "/crashes")
	defer common.RecoverWithCrashFile()

	logger := common.SetupLogger(config, "automation-admin")

	serviceURL := fmt.Sprintf("http://%s:%d", config.Admin.Host, config.Admin.Port)
	common.PrintBanner("AUTOMATION ADMIN", serviceURL, config, logger)

	db, err := adminstore.Open(common.BadgerConfig{Path: config.Admin.DBPath}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open admin database")
	}

	srv := adminserver.New(adminserver.Deps{
		Clients: adminstore.NewClientRepo(db, logger),
		Commands: adminstore.NewCommandRepo(db, logger),
		Results:  adminstore.NewCommandResultRepo(db, logger),
		Config:   config,
		Logger:   logger,
	})

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("admin HTTP server stopped unexpectedly")
		}
	}()

	time.Sleep(100 * time.Millisecond)
	logger.Info().Str("url", serviceURL).Msg("admin ready - press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("interrupt signal received")

	common.PrintShutdownBanner("AUTOMATION ADMIN", logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("admin shutdown failed")
	}
	if err := db.Close(); err != nil {
		logger.Warn().Err(err).Msg("admin database close failed")
	}
	common.Stop()
	logger.Info().Msg("admin stopped")
}
