// Package main runs Greeter, a minimal INTERSECT service exposing one
// capability (Greeter.say_hello) over a configured broker. It exists
// to exercise pkg/service, internal/config, and internal/telemetry as
// a runnable binary, the way the teacher's cmd/orchestrator/main.go
// wires its own config-load/start/signal-wait/shutdown sequence.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/intersect-sdk/intersect-go/internal/config"
	"github.com/intersect-sdk/intersect-go/internal/telemetry"
	"github.com/intersect-sdk/intersect-go/pkg/broker"
	"github.com/intersect-sdk/intersect-go/pkg/capability"
	"github.com/intersect-sdk/intersect-go/pkg/service"
)

// HelloRequest is the request payload of Greeter.say_hello.
type HelloRequest struct {
	Name string `json:"name"`
}

// HelloResponse is the response payload of Greeter.say_hello.
type HelloResponse struct {
	Greeting string `json:"greeting"`
}

func main() {
	configFlag := flag.String("config", "", "path to the service's YAML configuration file")
	flag.Parse()

	// Configuration source priority: explicit flag, then a conventional
	// default path, matching the teacher's "flag, then default file"
	// resolution order in cmd/orchestrator/main.go.
	configPath := *configFlag
	if configPath == "" {
		configPath = "config/greeter.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("greeter: loading config from %s: %v", configPath, err)
	}
	if err := cfg.ValidateService(); err != nil {
		log.Fatalf("greeter: invalid config: %v", err)
	}

	logger, err := telemetry.New("logs", cfg.Hierarchy.Service, false)
	if err != nil {
		log.Fatalf("greeter: starting logger: %v", err)
	}
	defer logger.Close()

	cap, err := capability.NewBuilder("Greeter").
		Operation("say_hello", HelloRequest{}, HelloResponse{}, func(req interface{}) (interface{}, error) {
			r := req.(HelloRequest)
			if r.Name == "" {
				return nil, fmt.Errorf("name must not be empty")
			}
			return HelloResponse{Greeting: "Hello, " + r.Name + "!"}, nil
		}).
		Status(HelloResponse{}, func() (interface{}, error) {
			return HelloResponse{Greeting: "greeter is alive"}, nil
		}).
		Build()
	if err != nil {
		log.Fatalf("greeter: building capability: %v", err)
	}

	svc, err := service.New(cfg, logger, nil, cap)
	if err != nil {
		log.Fatalf("greeter: constructing service: %v", err)
	}

	primary := cfg.Brokers[0]
	endpoint := fmt.Sprintf("%s://%s:%d", primary.Protocol, primary.Host, primary.Port)
	creds := broker.Credentials{Username: primary.Username, Password: primary.Password}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	startErr := make(chan error, 1)
	go func() {
		startErr <- svc.Start(ctx, endpoint, creds, func() { close(ready) })
	}()

	select {
	case err := <-startErr:
		log.Fatalf("greeter: starting service: %v", err)
	case <-ready:
		logger.Infof("greeter: ready as %s", endpoint)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Infof("greeter: received signal %s, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := svc.Stop(shutdownCtx); err != nil {
		logger.Errorf("greeter: shutdown: %v", err)
	}
}

