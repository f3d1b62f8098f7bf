// ABOUTME: Entry point for the fanclub-gateway server
// ABOUTME: Provides serve, init, health and version commands

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/fanclub-gateway/internal/config"
	"github.com/2389/fanclub-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __                 _       _
 / _| __ _ _ __  ___| |_   _| |__
| |_ / _' | '_ \/ __| | | | | '_ \
|  _| (_| | | | \__ \ | |_| | |_) |
|_|  \__,_|_| |_|___/_|\__,_|_.__/
`

// getConfigPath returns the path to the gateway config file.
// Priority: FANCLUB_CONFIG env var > XDG_CONFIG_HOME/fanclub/gateway.yaml > ~/.config/fanclub/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FANCLUB_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "fanclub", "gateway.yaml")
}

// getDataPath returns the path to the fanclub data directory.
// Priority: XDG_DATA_HOME/fanclub > ~/.local/share/fanclub
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "fanclub")
}

func usage() {
	fmt.Println("Usage: fanclub-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the gateway server")
	fmt.Println("  init      Create a new config file interactively")
	fmt.Println("  health    Check gateway health and readiness")
	fmt.Println("  version   Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version", "--version", "-v":
		fmt.Println(version)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	if !cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	if cfg.Server.GRPCAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting fanclub-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	base, err := healthBaseURL(cfg)
	if err != nil {
		return err
	}

	for _, path := range []string{"/health", "/health/ready"} {
		if err := checkEndpoint(ctx, base+path); err != nil {
			return err
		}
	}

	color.New(color.FgGreen).Println("healthy")
	return nil
}

// healthBaseURL returns the local URL the health command checks. Wildcard
// listen hosts are reached on loopback.
func healthBaseURL(cfg *config.Config) (string, error) {
	addr := cfg.Server.HTTPAddr
	if addr == "" {
		if cfg.Tailscale.Enabled {
			return "", errors.New("no TCP address to check: the gateway listens on tailscale only, check https://" + cfg.Tailscale.Hostname + "/health from the tailnet")
		}
		return "", errors.New("no TCP address to check: server.http_addr is empty")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("parsing server.http_addr %q: %w", addr, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

func checkEndpoint(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
