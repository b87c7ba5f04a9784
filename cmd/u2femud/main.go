// Command u2femud emulates a U2F HID authenticator over a character
// device transport.
//
// Usage:
//
//	u2femud [options]
//
// Options:
//
//	--config            path to an optional YAML config file
//	--attestation-key   path to the attestation private key (PEM)
//	--attestation-cert  path to the attestation certificate (DER)
//	--wrap-key          path to the raw 32-byte key-handle wrap key
//	--device            path to the HID report device
//	--v                 enable verbose (debug) logging
//	--json              use JSON log format
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/MattGorko/U2F-Emulated/channel"
	"github.com/MattGorko/U2F-Emulated/config"
	"github.com/MattGorko/U2F-Emulated/engine"
	"github.com/MattGorko/U2F-Emulated/hidcmd"
	"github.com/MattGorko/U2F-Emulated/pkg"
	"github.com/MattGorko/U2F-Emulated/pkg/prof"
	"github.com/MattGorko/U2F-Emulated/transport"
	"github.com/MattGorko/U2F-Emulated/u2f"
	"github.com/MattGorko/U2F-Emulated/u2f/authkey"
)

const component = pkg.ComponentEngine

// deviceVersion identifies this build in the U2FHID INIT response.
var deviceVersion = hidcmd.DeviceVersion{Major: 1, Minor: 0, Build: 0}

func main() {
	os.Exit(run())
}

func run() int {
	verbose := pflag.Bool("v", false, "enable verbose (debug) logging")
	jsonLog := pflag.Bool("json", false, "use JSON log format")
	cpuProfile := pflag.String("cpu-profile", "", "write a CPU profile to this path on shutdown (requires -tags profile)")
	flags := config.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	if *verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	if *jsonLog {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}

	if *cpuProfile != "" {
		if err := prof.StartCPU(*cpuProfile); err != nil {
			pkg.LogError(component, "failed to start CPU profile", "error", err)
			return 2
		}
		defer prof.StopCPU()
	}

	cfg, err := config.Load(flags)
	if err != nil {
		pkg.LogError(component, "configuration error", "error", err)
		return 2
	}

	material, err := authkey.Load(cfg.AttestationKeyPath, cfg.AttestationCertPath, cfg.WrapKeyPath)
	if err != nil {
		pkg.LogError(component, "failed to load attestation material", "error", err)
		return 2
	}

	dev, err := transport.Open(cfg.DevicePath)
	if err != nil {
		pkg.LogError(component, "failed to open transport", "error", err)
		return 1
	}
	defer dev.Close()

	banner(cfg.DevicePath)

	table := channel.NewTable(channel.DefaultTransactionTimeout)
	handler := u2f.NewHandler(material)
	dispatcher := hidcmd.NewDispatcher(table, deviceVersion, handler.Handle)
	eng := engine.New(dev, table, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		pkg.LogInfo(component, "shutting down")
		cancel()
	}()

	if err := eng.Run(ctx); err != nil {
		kind := pkg.Classify(err)
		pkg.LogError(component, "engine stopped with error", "error", err, "kind", kind.String())
		if kind == pkg.KindTransport {
			return 1
		}
		return 2
	}
	return 0
}

func banner(devicePath string) {
	title := color.New(color.FgHiCyan, color.Bold).SprintFunc()
	detail := color.New(color.FgHiGreen).SprintFunc()
	fmt.Fprintln(os.Stderr, title("u2femud"), detail(fmt.Sprintf("listening on %s", devicePath)))
}
