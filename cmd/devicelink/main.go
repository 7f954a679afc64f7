package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/devicelink/internal/config"
	"github.com/codefionn/devicelink/internal/devices"
	"github.com/codefionn/devicelink/internal/handshake"
	"github.com/codefionn/devicelink/internal/logger"
	"github.com/codefionn/devicelink/internal/manager"
	"github.com/codefionn/devicelink/internal/server"
	"github.com/codefionn/devicelink/internal/session"
	"github.com/codefionn/devicelink/internal/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	devicesPath := flag.String("devices", "", "Path to devices file (JSON array of {id, public_key, private_key})")
	port := flag.Int("port", 0, "Override listen port")
	logLevel := flag.String("log-level", "", "Override log level (debug, info, warn, error, none)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.Listen.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *devicesPath != "" {
		cfg.DevicesPath = *devicesPath
	}
	if cfg.DevicesPath == "" {
		return fmt.Errorf("no devices file configured (use -devices or devices_path in the config)")
	}

	logger.Init(logger.ParseLevel(cfg.LogLevel), os.Stderr)

	store, err := devices.LoadFile(cfg.DevicesPath)
	if err != nil {
		return err
	}

	m := manager.New(store, manager.Options{
		Handshake: handshake.Options{
			Timeout:   cfg.HandshakeTimeout(),
			Algorithm: cfg.Handshake.Algorithm,
			NonceSize: cfg.Handshake.NonceSize,
		},
		Session: session.Options{
			IdleTimeout:    cfg.ConnectionTimeout(),
			MessageTimeout: cfg.MessageTimeout(),
			QueueLimit:     cfg.Connections.Messages.QueueLimit,
		},
	})

	m.OnConnection(func(sess *session.Session) {
		device := sess.DeviceID()
		logger.Info("Device %s > connected from %s", device, sess.ClientAddr())

		sess.OnMessage(func(msg *wire.Message) {
			logger.Info("Device %s > %s %s", device, msg.Type, msg.Key)
		})
		sess.OnGoodbye(func() {
			logger.Info("Device %s > goodbye", device)
		})
		sess.OnTimeout(func() {
			logger.Warn("Device %s > idle timeout", device)
		})
		sess.OnError(func(err error) {
			logger.Warn("Device %s > %v", device, err)
		})
		sess.OnClose(func(reason string) {
			logger.Info("Device %s > closed (%s)", device, reason)
		})
	})

	srv := server.New(cfg, m)
	if err := srv.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return srv.Stop()
}
