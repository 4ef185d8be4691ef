package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/deck.control/internal/config"
	"github.com/banshee-data/deck.control/internal/version"
)

type options struct {
	configPath string
	listen     string
	port       string
	simulate   bool
	dbPath     string
	layoutPath string
	home       bool
}

func newOptions(fs *flag.FlagSet) *options {
	o := &options{}
	fs.StringVar(&o.configPath, "config", config.DefaultConfigPath, "Robot config JSON (a missing default file means built-in defaults)")
	fs.StringVar(&o.listen, "listen", config.DefaultListenAddr, "Listen address")
	fs.StringVar(&o.port, "port", config.DefaultSerialPort, "Motor controller serial port (ignored with --simulate)")
	fs.BoolVar(&o.simulate, "simulate", false, "Run without hardware; the controller is simulated")
	fs.StringVar(&o.dbPath, "db", config.DefaultDatabasePath, "Calibration database path")
	fs.StringVar(&o.layoutPath, "layout", "", "Deck layout YAML to load at start-up")
	fs.BoolVar(&o.home, "home", false, "Home the gantry at start-up")
	return o
}

// loadConfig reads the config file and applies any flags given explicitly
// on the command line on top of it.
func (o *options) loadConfig(fs *flag.FlagSet) (*config.RobotConfig, error) {
	cfg := config.DefaultRobotConfig()
	explicitConfig := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitConfig = true
		}
	})

	if _, err := os.Stat(o.configPath); err == nil || explicitConfig {
		loaded, err := config.LoadRobotConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = &o.listen
		case "port":
			cfg.SerialPort = &o.port
		case "simulate":
			cfg.Simulate = &o.simulate
		case "db":
			cfg.DatabasePath = &o.dbPath
		case "layout":
			cfg.LayoutFile = &o.layoutPath
		}
	})
	return cfg, cfg.Validate()
}

func main() {
	opts := newOptions(flag.CommandLine)
	flag.Parse()
	log.Printf("deckd %s", version.String())

	cfg, err := opts.loadConfig(flag.CommandLine)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	d, err := newDaemon(cfg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer d.Close()
	log.Printf("session %s, simulate=%v, db=%s", d.sessionID, cfg.GetSimulate(), cfg.GetDatabasePath())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.serial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if err := d.start(ctx, opts.home); err != nil {
		stop()
		wg.Wait()
		log.Fatalf("failed to bring robot up: %v", err)
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		h, err := d.handler()
		if err != nil {
			log.Printf("failed to build routes: %v", err)
			stop()
			return
		}
		server := &http.Server{
			Addr:              cfg.GetListenAddr(),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
