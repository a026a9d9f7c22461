package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/acquire"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/config"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/monitor"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/publish"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/scope"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/server"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/visa"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scoped v%s (Build: %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config failed: %v\n", err)
		cfg = config.GetDefaultConfig()
		fmt.Println("using default config")
	}

	log := setupLogger(cfg.Log)
	log.Infof("scoped v%s starting...", Version)
	log.Infof("config file: %s", *configFile)

	if cfg.Monitor.Enabled {
		mon := monitor.NewMonitor(log)
		mon.StartMetricsServer(cfg.Monitor.MetricsPort)
		mon.StartRuntimeMonitor()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rm, err := visa.NewResourceManager(cfg.ResourceList(), &visa.SessionOptions{
		DialTimeout:  cfg.Scope.DialTimeout.Std(),
		ReadTimeout:  cfg.Scope.ReadTimeout.Std(),
		WriteTimeout: cfg.Scope.WriteTimeout.Std(),
		KeepAlive:    cfg.Scope.KeepAlive.Std(),
	}, log)
	if err != nil {
		log.Fatalf("resource manager: %v", err)
	}

	sess, err := rm.Open(ctx)
	if err != nil {
		log.Fatalf("opening instrument session: %v", err)
	}

	scp, err := scope.Connect(ctx, sess, scope.Options{CapturePoints: cfg.Scope.CapturePoints}, log)
	if err != nil {
		log.Fatalf("connecting to scope: %v", err)
	}

	publisher, err := buildPublisher(cfg, log)
	if err != nil {
		log.Fatalf("setting up publishers: %v", err)
	}

	if cfg.Acquire.Enabled {
		if publisher == nil {
			log.Fatal("acquisition loop enabled but no publisher configured")
		}
		acq := acquire.NewAcquirer(scp, publisher, cfg.Acquire.Interval.Std(), cfg.Acquire.Sources, log)
		go acq.Run(ctx)
	}

	if cfg.Server.Enabled {
		srv := server.NewTCPServer(cfg, scp, publisher, log, scp)
		if err := srv.Start(); err != nil {
			log.Fatalf("gateway failed: %v", err)
		}
		return
	}

	// No gateway: run until signaled.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("received %v, shutting down...", sig)
	cancel()
	if publisher != nil {
		publisher.Close()
	}
	scp.Close()
}

func buildPublisher(cfg *config.Config, log *logrus.Logger) (publish.Publisher, error) {
	var sinks []publish.Publisher

	if cfg.Redis.Enabled {
		p, err := publish.NewRedisPublisher(cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, p)
	}
	if cfg.MQTT.Enabled {
		p, err := publish.NewMQTTPublisher(cfg.MQTT, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, p)
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	// Always fan out through Multi, even for a single sink, so publish
	// failures are counted per sink.
	return publish.NewMulti(sinks...), nil
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("opening log file failed: %v, using stdout", err)
		}
	}

	return log
}
