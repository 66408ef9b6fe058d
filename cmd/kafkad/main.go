/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
kafkad Server - Main Entry Point.

USAGE:
======

	kafkad [options]

OPTIONS:
========

	-config string    Path to configuration file (TOML format)
	-env string       Path to a .env file (default: .env)
	-human-readable   Use human-readable log format instead of JSON
	-quiet            Skip banner and config display, output logs only
	-version          Show version information

ENVIRONMENT VARIABLES:
======================

	SERVER_HOST                 Listen host (default: 127.0.0.1)
	SERVER_PORT                 Listen port (default: 9092)
	CLIENT_DRAIN_TIMEOUT_SECS   Shutdown drain timeout (default: 5)

STARTUP SEQUENCE:
=================
1. Parse command line flags
2. Load .env, the config file and environment overrides
3. Initialize logging
4. Create broker state and seed configured topics
5. Bind the TCP server (bind failure exits with status 1)
6. Start the metrics endpoint if enabled
7. Wait for SIGINT or SIGTERM, then drain sessions
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"kafkad/internal/banner"
	"kafkad/internal/broker"
	"kafkad/internal/config"
	"kafkad/internal/logging"
	"kafkad/internal/metrics"
	"kafkad/internal/server"
)

func printHelp() {
	banner.Print()
	fmt.Println("\033[1;36mUsage:\033[0m")
	fmt.Println("  kafkad [options]")
	fmt.Println()
	fmt.Println("\033[1;36mOptions:\033[0m")
	fmt.Println("  -config string    Path to configuration file (TOML format)")
	fmt.Println("  -env string       Path to a .env file (default: .env)")
	fmt.Println("  -human-readable   Use human-readable log format instead of JSON")
	fmt.Println("  -quiet            Skip banner and config display, output logs only")
	fmt.Println("  -version          Show version information")
	fmt.Println("  -help, -h         Show this help message")
	fmt.Println()
	fmt.Println("\033[1;36mEnvironment Variables:\033[0m")
	fmt.Println("  SERVER_HOST                 Listen host (default: 127.0.0.1)")
	fmt.Println("  SERVER_PORT                 Listen port (default: 9092)")
	fmt.Println("  CLIENT_DRAIN_TIMEOUT_SECS   Seconds to wait for sessions on shutdown (default: 5)")
	fmt.Println("  IDLE_TIMEOUT_SECS           Close sessions idle this long, 0 disables (default: 300)")
	fmt.Println("  MAX_REQUEST_BYTES           Largest accepted request frame")
	fmt.Println("  BROKER_NODE_ID              Node ID advertised in metadata")
	fmt.Println("  BROKER_ADVERTISED_HOST      Host advertised in metadata")
	fmt.Println("  BROKER_CLUSTER_ID           Cluster ID advertised in metadata")
	fmt.Println("  BROKER_TOPICS               Topics created at startup, e.g. orders:3,events")
	fmt.Println("  LOG_LEVEL                   Log level: debug, info, warn, error")
	fmt.Println("  LOG_JSON                    JSON log output (default true)")
	fmt.Println("  METRICS_ENABLED             Serve Prometheus metrics")
	fmt.Println("  METRICS_ADDR                Metrics listen address (default: :9100)")
	fmt.Println()
	fmt.Println("\033[1;36mExamples:\033[0m")
	fmt.Println("  # Listen on all interfaces with human-readable logs")
	fmt.Println("  SERVER_HOST=0.0.0.0 kafkad -human-readable")
	fmt.Println()
	fmt.Println("  # Start with a config file")
	fmt.Println("  kafkad -config /etc/kafkad/kafkad.toml")
	fmt.Println()
}

func main() {
	os.Exit(run())
}

func run() int {
	// Custom flag handling for help
	for _, arg := range os.Args[1:] {
		if arg == "-h" || arg == "--help" || arg == "-help" || arg == "help" {
			printHelp()
			return 0
		}
	}

	configPath := flag.String("config", "", "Path to configuration file")
	envPath := flag.String("env", config.DefaultDotEnvFile, "Path to a .env file")
	humanReadable := flag.Bool("human-readable", false, "Use human-readable log format instead of JSON")
	quietMode := flag.Bool("quiet", false, "Skip banner and config display, output logs only")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		banner.PrintCompact(os.Stdout, "kafkad")
		return 0
	}

	// .env first so the file and process environment can both be overridden
	// by variables that are already set.
	if _, err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading env file: %v\n", err)
		return 1
	}
	cfgMgr := config.Global()
	if *configPath != "" {
		if err := cfgMgr.LoadFromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
			return 1
		}
	}
	if err := cfgMgr.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading environment: %v\n", err)
		return 1
	}
	cfg := cfgMgr.Get()
	if *humanReadable {
		cfg.LogJSON = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	if !*quietMode {
		banner.PrintServerWithConfig(cfg)
	}

	logging.Configure(logging.Config{
		Level:    logging.ParseLevel(cfg.LogLevel),
		Output:   os.Stdout,
		JSONMode: cfg.LogJSON,
	})
	logger := logging.NewLogger("main")
	logger.Info("Starting kafkad", "version", banner.Version, "node_id", cfg.NodeID)

	state := broker.NewState()
	for _, t := range cfg.Topics {
		md, err := state.CreateTopic(t.Name, t.Partitions)
		if err != nil {
			logger.Error("Failed to create configured topic", "topic", t.Name, "error", err)
			return 1
		}
		logger.Info("Topic created", "topic", md.Name, "partitions", md.Partitions, "topic_id", md.ID.String())
	}

	handler := broker.NewHandler(broker.HandlerConfig{
		NodeID:    cfg.NodeID,
		Host:      cfg.GetAdvertisedHost(),
		Port:      int32(cfg.Port),
		ClusterID: cfg.ClusterID,
	})
	srv := server.NewServer(cfg, state, handler, metrics.Get())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bind before anything else runs so a taken port fails fast.
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start server", "error", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.NewServer(cfg.Metrics, metrics.Get()).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		// Abandoned sessions do not hold up the exit.
		res := srv.Shutdown(cfg.DrainTimeout())
		logger.Info("Drain finished", "clean", res.Clean, "abandoned", res.Abandoned)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Metrics server failed", "error", err)
		return 1
	}
	logger.Info("Shutdown complete")
	return 0
}
