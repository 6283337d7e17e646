// ABOUTME: Entry point for the Kanade player
// ABOUTME: Dispatches play and library subcommands and wires the process
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kanade-player/kanade-go/internal/control"
	"github.com/kanade-player/kanade-go/internal/discovery"
	"github.com/kanade-player/kanade-go/internal/library"
	"github.com/kanade-player/kanade-go/internal/ui"
	"github.com/kanade-player/kanade-go/internal/version"
	"github.com/kanade-player/kanade-go/pkg/kanade"
)

func usage() {
	fmt.Fprintf(os.Stderr, `%s %s

Usage:
  kanade play -path FILE [-device NAME] [-control ADDR] [-no-tui]
  kanade library init [-db PATH]
  kanade library scan -root DIR [-db PATH]
  kanade version
`, version.Product, version.Version)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "play":
		runPlay(os.Args[2:])
	case "library":
		runLibrary(os.Args[2:])
	case "version":
		fmt.Printf("%s %s\n", version.Product, version.Version)
	default:
		usage()
	}
}

func runPlay(args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	path := fs.String("path", "", "Media file to play")
	deviceName := fs.String("device", "", "Output device name substring (default: system default)")
	controlAddr := fs.String("control", "", "Control endpoint listen address, e.g. :8939 (disabled when empty)")
	name := fs.String("name", "", "Player friendly name (default: hostname-kanade)")
	logFile := fs.String("log-file", "kanade.log", "Log file path")
	noTUI := fs.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "play: -path is required")
		fs.Usage()
		os.Exit(2)
	}
	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI owns the terminal, so logs go only to the file.
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-kanade", hostname)
	}
	log.Printf("Starting %s %s as %s", version.Product, version.Version, playerName)

	player, err := kanade.NewPlayer(kanade.Config{DeviceName: *deviceName})
	if err != nil {
		log.Fatalf("Failed to open player: %v", err)
	}
	if err := player.Play(*path); err != nil {
		log.Fatalf("Failed to start playback: %v", err)
	}

	// Optional network control surface.
	if *controlAddr != "" {
		ctl := control.NewServer(*controlAddr, player.Mailbox())
		go func() {
			if err := ctl.ListenAndServe(); err != nil {
				log.Printf("Control endpoint failed: %v", err)
			}
		}()
		defer ctl.Shutdown()

		if port := listenPort(*controlAddr); port > 0 {
			ann := discovery.NewAnnouncer(playerName, port)
			if err := ann.Start(); err != nil {
				log.Printf("mDNS advertisement failed: %v", err)
			} else {
				defer ann.Stop()
			}
		}
	}

	tuiDone := make(chan struct{})
	if useTUI {
		prog, err := ui.Run(player.Mailbox(), player.Status)
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		go func() {
			if _, err := prog.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			close(tuiDone)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	playErr := waitForEnd(player, tuiDone, sigChan)

	if err := player.Close(); err != nil {
		log.Printf("Error closing player: %v", err)
	}
	log.Printf("Player stopped")
	if playErr != nil {
		os.Exit(1)
	}
}

// waitForEnd blocks until playback finishes, the TUI quits, or a shutdown
// signal arrives. It reports the error when the session died mid-stream;
// an interrupted or TUI-quit session counts as clean.
func waitForEnd(player *kanade.Player, tuiDone <-chan struct{}, sig <-chan os.Signal) error {
	select {
	case <-player.Done():
		if err := player.Err(); err != nil {
			log.Printf("Playback failed: %v", err)
			return err
		}
		log.Printf("Playback finished")
	case <-tuiDone:
		log.Printf("Received quit from TUI")
	case <-sig:
		log.Printf("Shutdown signal received")
	}
	return nil
}

func runLibrary(args []string) {
	if len(args) < 1 {
		usage()
	}

	switch args[0] {
	case "init":
		fs := flag.NewFlagSet("library init", flag.ExitOnError)
		db := fs.String("db", defaultDBPath(), "Library database path")
		fs.Parse(args[1:])

		store := openStore(*db)
		defer store.Close()
		fmt.Printf("Library initialized at %s\n", *db)

	case "scan":
		fs := flag.NewFlagSet("library scan", flag.ExitOnError)
		root := fs.String("root", "", "Directory to scan for media files")
		db := fs.String("db", defaultDBPath(), "Library database path")
		fs.Parse(args[1:])

		if *root == "" {
			fmt.Fprintln(os.Stderr, "library scan: -root is required")
			fs.Usage()
			os.Exit(2)
		}

		store := openStore(*db)
		defer store.Close()

		added, err := library.Scan(*root, store)
		if err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("Scanned %s: %d tracks\n", *root, added)

	default:
		usage()
	}
}

func openStore(path string) *library.Store {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create library directory: %v", err)
		}
	}
	store, err := library.Open(path)
	if err != nil {
		log.Fatalf("Failed to open library: %v", err)
	}
	return store
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "kanade-library.db"
	}
	return filepath.Join(dir, "kanade", "library.db")
}

// listenPort extracts the numeric port from a listen address like ":8939"
// or "0.0.0.0:8939". Unparseable addresses advertise nothing.
func listenPort(addr string) int {
	var port int
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			if _, err := fmt.Sscanf(addr[i+1:], "%d", &port); err != nil {
				return 0
			}
			return port
		}
	}
	return 0
}
