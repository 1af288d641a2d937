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

	"github.com/formflow/automation/internal/app"
	"github.com/formflow/automation/internal/common"
)

// configPaths allows -config to be specified multiple times; later files
// override earlier ones.
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }
func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "HTTP port (overrides config)")
	serverPortP  = flag.Int("p", 0, "HTTP port shorthand (overrides config)")
	serverHost   = flag.String("host", "", "HTTP host (overrides config)")
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
		fmt.Printf("automation-node version %s\n", common.GetVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("automation.toml"); err == nil {
			configFiles = append(configFiles, "automation.toml")
		} else if _, err := os.Stat("deployments/local/automation.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/automation.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(config, finalPort, *serverHost)

	common.InstallCrashHandler(config.Storage.Badger.Path + "/crashes")
	defer common.RecoverWithCrashFile()

	logger := common.SetupLogger(config, "automation-node")

	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
	common.PrintBanner("AUTOMATION NODE", serviceURL, config, logger)

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize node application")
	}

	shutdownChan := make(chan struct{})
	application.Run(shutdownChan)

	time.Sleep(100 * time.Millisecond)
	logger.Info().Str("url", serviceURL).Msg("node ready - press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("interrupt signal received")
	case <-shutdownChan:
		logger.Info().Msg("shutdown requested via HTTP")
	}

	common.PrintShutdownBanner("AUTOMATION NODE", logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("node shutdown failed")
	}
	common.Stop()
	logger.Info().Msg("node stopped")
}
