package main

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/hardware/grpcdev"
	"github.com/signalsfoundry/autoalignment/hardware/serialdev"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/model"
)

func TestMotorServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := Config{
		ListenAddress:  lis.Addr().String(),
		MetricsAddress: "",
		Implementor:    "srw",
		Exposure:       time.Millisecond,
		LogLevel:       "warn",
		LogFormat:      "text",
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	client, conn, err := grpcdev.Dial(cfg.ListenAddress)
	if err != nil {
		t.Fatalf("grpcdev.Dial: %v", err)
	}
	defer conn.Close()

	got, err := client.Move(ctx, hardware.HBTranslation, 5e-6, model.Absolute)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if got != 5e-6 {
		t.Fatalf("Move = %g, want 5e-6", got)
	}
	if _, err := client.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestMotorServerRejectsUnknownImplementor(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer lis.Close()

	if err := run(context.Background(), Config{Implementor: "xrt"}, nil, lis); err == nil {
		t.Fatalf("run with unknown implementor returned nil error")
	}
}

func TestServeSerial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	dev := hardware.NewSimulatedDevice()
	done := make(chan struct{})
	go func() {
		defer close(done)
		serveSerial(ctx, lis, dev, logging.Noop())
	}()

	ctrl, err := serialdev.Dial(ctx, lis.Addr().String(), logging.Noop())
	if err != nil {
		t.Fatalf("serialdev.Dial: %v", err)
	}
	defer ctrl.Close()

	if _, err := ctrl.Move(ctx, hardware.SlitsHCenter, 1e-4, model.Absolute); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if pos, _ := dev.Position(ctx, hardware.SlitsHCenter); pos != 1e-4 {
		t.Fatalf("device slit centre = %g, want 1e-4", pos)
	}

	cancel()
	_ = lis.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("serveSerial did not return after close")
	}
}

func TestMotorServerRejectsMissingSerialPort(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer lis.Close()

	cfg := Config{Implementor: "srw", SerialPort: filepath.Join(t.TempDir(), "ttyMISSING")}
	err = run(context.Background(), cfg, logging.Noop(), lis)
	if err == nil || !strings.Contains(err.Error(), "open serial port") {
		t.Fatalf("run with missing serial port error = %v, want open serial port failure", err)
	}
}

func TestServePortDrivesDevice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, server := net.Pipe()
	dev := hardware.NewSimulatedDevice()
	done := make(chan struct{})
	go func() {
		defer close(done)
		servePort(ctx, server, dev, logging.Noop())
	}()

	ctrl := serialdev.NewController(client, logging.Noop())
	defer ctrl.Close()
	if _, err := ctrl.Move(ctx, hardware.HBShape, 150, model.Absolute); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if pos, _ := dev.Position(ctx, hardware.HBShape); pos != 150 {
		t.Fatalf("device shape = %g, want 150", pos)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("servePort did not return after cancel")
	}
}
