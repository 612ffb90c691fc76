// almmmost-server is the MmmOST-compatible file server entrypoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vax11/almmmost/internal/config"
	"github.com/vax11/almmmost/internal/server"
	"github.com/vax11/almmmost/internal/version"
)

func main() {
	var configPath string
	var showVersion bool
	var logFile string

	flag.StringVar(&configPath, "config", filepath.Join("config", "almmmost.ini"), "Path to the INI config file")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")
	flag.StringVar(&logFile, "log-file", "", "Optional log file path")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Get().String())
		return
	}

	configProvided := false
	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configProvided = true
		}
	})

	if logFile != "" {
		if err := setupLogFile(logFile); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to open log file:", err)
			os.Exit(1)
		}
	}

	resolvedCfgPath, err := resolveConfigPath(configPath, configProvided)
	if err != nil {
		log.Printf("FATAL: resolve config path: %v", err)
		fmt.Fprintln(os.Stderr, "Failed to resolve config:", err)
		os.Exit(1)
	}
	configPath = resolvedCfgPath

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("FATAL: load config %q: %v", configPath, err)
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Printf("FATAL: start server: %v", err)
		fmt.Fprintln(os.Stderr, "Failed to start server:", err)
		os.Exit(1)
	}

	log.Printf("almmmost %s", version.Get().String())
	log.Printf("Config: %s", configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM)
	go func() {
		<-sig
		log.Print("received SIGTERM, shutting down")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		log.Printf("FATAL: %v", err)
		os.Exit(1)
	}
}

// resolveConfigPath implements the recommended behavior: use an explicitly
// provided -config path as-is; otherwise prefer ./config/almmmost.ini,
// falling back to ./almmmost.ini, and finally writing out a default
// config if neither exists.
func resolveConfigPath(flagValue string, configProvided bool) (string, error) {
	if configProvided {
		return flagValue, nil
	}

	preferred := filepath.Join("config", "almmmost.ini")
	legacy := "almmmost.ini"
	if exists(preferred) {
		return preferred, nil
	}
	if exists(legacy) {
		return legacy, nil
	}

	return preferred, writeDefaultConfig(preferred)
}

func exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	const tmpl = `[General]
Genrev = 1
Spool Drive = 0

[Disks]
Image Dir = ./images
Num Disks = 1
Max Priv Dirs = 1

[Disk 0]
Type = PUBLIC
Floppy = true
SPT = 26
BSF = 3
DBM = 242
DBL = 63
RES = 2
ALx = 2
Image 0 = disk0.img

[Device]
Path = /dev/tvi_sdlc0
Num Ports = 1

[Port 0]
Autologon = false
`
	return os.WriteFile(path, []byte(tmpl), 0o644)
}

func setupLogFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return nil
}
