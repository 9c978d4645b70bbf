package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/DriverTrack/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("config parse error, %v", err))
	}

	grpcAddr := cfg.Tracker.GRPCAddr
	if grpcAddr == "" {
		grpcAddr = ":50051"
	}
	httpAddr := cfg.Tracker.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunTracker(ctx, cfg, trackerOpts{
		grpcAddr:    grpcAddr,
		httpAddr:    httpAddr,
		swaggerPath: os.Getenv("swaggerPath"),
	}, defaultTrackerFactories())
	if err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
