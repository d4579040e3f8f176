// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	packet "github.com/ZaparooProject/go-packet"
	"github.com/ZaparooProject/go-packet/detection"
	_ "github.com/ZaparooProject/go-packet/detection/bus"
	_ "github.com/ZaparooProject/go-packet/detection/uart"
	"github.com/ZaparooProject/go-packet/session"
	"github.com/ZaparooProject/go-packet/transport/i2c"
	"github.com/ZaparooProject/go-packet/transport/spi"
	"github.com/ZaparooProject/go-packet/transport/uart"
	"github.com/rs/zerolog"
)

// parseArgs builds the run configuration. Values come from the defaults,
// then the -config file, then any flag given explicitly.
func parseArgs(args []string, errOut io.Writer) (*config, error) {
	fs := flag.NewFlagSet("packetcat", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var (
		configPath  string
		device      string
		send        string
		baud        int
		repeat      int
		interval    time.Duration
		debug       bool
		list        bool
		lengthAware bool
		sessionLog  bool
		detectOnly  bool
		keepAlive   bool
		mode        string
	)
	fs.StringVar(&configPath, "config", "", "TOML config file with [link], [session], [uart], [detect] and [retry] tables")
	fs.StringVar(&device, "device", "", "Device path (serial port, /dev/spidevX.Y or /dev/i2c-N; auto-detect if empty)")
	fs.StringVar(&send, "send", "", "Send one frame given as id:hexpayload, then exit")
	fs.IntVar(&baud, "baud", uart.DefaultBaudRate, "Serial baud rate")
	fs.IntVar(&repeat, "repeat", 1, "How many times -send transmits the frame")
	fs.DurationVar(&interval, "interval", time.Second, "Pause between repeated sends")
	fs.BoolVar(&debug, "debug", false, "Enable debug output")
	fs.BoolVar(&list, "list", false, "List serial ports and exit")
	fs.BoolVar(&lengthAware, "length-aware", false, "Use the length byte to find the end of a frame")
	fs.BoolVar(&sessionLog, "log", false, "Write a session log file to the working directory")
	fs.BoolVar(&detectOnly, "detect", false, "Print detected peers and exit")
	fs.BoolVar(&keepAlive, "reconnect", false, "Reopen the device when it fails while reading")
	fs.StringVar(&mode, "mode", "safe", "Detection mode: passive, safe or full")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	cfg := defaultConfig()
	if configPath != "" {
		if err := loadConfigFile(configPath, cfg); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.device = device
		case "send":
			cfg.send = send
		case "baud":
			cfg.baud = baud
		case "repeat":
			cfg.repeat = repeat
		case "interval":
			cfg.interval = interval
		case "debug":
			cfg.debug = debug
		case "list":
			cfg.list = list
		case "length-aware":
			cfg.lengthAware = lengthAware
		case "log":
			cfg.sessionLog = sessionLog
		case "detect":
			cfg.detectOnly = detectOnly
		case "reconnect":
			cfg.keepAlive = keepAlive
		}
	})

	if isFlagSet(fs, "mode") {
		m, err := detection.ParseMode(mode)
		if err != nil {
			return nil, err
		}
		cfg.detect.Mode = m
	}
	cfg.detect.BaudRate = cfg.baud

	if cfg.repeat < 1 {
		return nil, fmt.Errorf("-repeat must be at least 1, got %d", cfg.repeat)
	}
	if cfg.baud <= 0 {
		return nil, fmt.Errorf("-baud must be positive, got %d", cfg.baud)
	}
	return cfg, nil
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// parseSendArg splits "id:hexpayload" into an identifier and payload.
// The identifier accepts decimal or 0x-prefixed hex.
func parseSendArg(arg string) (byte, []byte, error) {
	idPart, payloadPart, ok := strings.Cut(arg, ":")
	if !ok {
		return 0, nil, fmt.Errorf("send value %q is not id:hexpayload", arg)
	}

	id, err := strconv.ParseUint(strings.TrimSpace(idPart), 0, 8)
	if err != nil {
		return 0, nil, fmt.Errorf("parse identifier %q: %w", idPart, err)
	}

	payloadPart = strings.Join(strings.Fields(payloadPart), "")
	payload, err := hex.DecodeString(payloadPart)
	if err != nil {
		return 0, nil, fmt.Errorf("parse payload: %w", err)
	}

	if err := packet.CheckPayload(byte(id), payload); err != nil {
		return 0, nil, fmt.Errorf("frame cannot be sent: %w", err)
	}
	return byte(id), payload, nil
}

// newTransport picks a transport from the device path.
func newTransport(cfg *config) (packet.Transport, error) {
	pathLower := strings.ToLower(cfg.device)

	// Check for I2C pattern
	if strings.Contains(pathLower, "i2c") {
		transport, err := i2c.New(cfg.device)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport for %s: %w", cfg.device, err)
		}
		return transport, nil
	}

	// Check for SPI pattern
	if strings.Contains(pathLower, "spi") {
		transport, err := spi.New(cfg.device)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", cfg.device, err)
		}
		return transport, nil
	}

	// Default to UART for serial ports
	transport, err := uart.New(cfg.device,
		uart.WithBaudRate(cfg.baud),
		uart.WithReadTimeout(cfg.readTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", cfg.device, err)
	}
	return transport, nil
}

func linkOptions(cfg *config, log zerolog.Logger) []packet.LinkOption {
	opts := []packet.LinkOption{
		packet.WithPortName(cfg.device),
		packet.WithRetryConfig(cfg.retry),
		packet.WithTraceSize(cfg.traceSize),
		packet.WithLogger(log),
	}
	if cfg.lengthAware {
		opts = append(opts, packet.WithLinkLengthAwareSync())
	}
	return opts
}

func newLink(transport packet.Transport, cfg *config, log zerolog.Logger) (*packet.Link, error) {
	link, err := packet.NewLink(transport, linkOptions(cfg, log)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}
	return link, nil
}

func runList(out io.Writer) error {
	ports, err := uart.ListPorts()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(out, "No serial ports found")
		return nil
	}
	for _, port := range ports {
		_, _ = fmt.Fprintln(out, port)
	}
	return nil
}

func runDetect(ctx context.Context, cfg *config, out io.Writer) error {
	devices, err := detection.DetectAll(ctx, &cfg.detect)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	for _, d := range devices {
		_, _ = fmt.Fprintln(out, d.String())
	}
	return nil
}

// autoDetect fills in cfg.device with the most trusted detected peer.
func autoDetect(ctx context.Context, cfg *config, log zerolog.Logger) error {
	log.Info().Str("mode", cfg.detect.Mode.String()).Msg("no device given, detecting peers")
	devices, err := detection.DetectAll(ctx, &cfg.detect)
	if err != nil {
		return fmt.Errorf("no device given and detection failed: %w", err)
	}
	best, _ := detection.Best(devices)
	log.Info().Stringer("device", best).Msg("using detected peer")
	cfg.device = best.Path
	return nil
}

func runSend(ctx context.Context, link *packet.Link, cfg *config, out io.Writer) error {
	id, payload, err := parseSendArg(cfg.send)
	if err != nil {
		return err
	}
	p, err := packet.New(id, payload)
	if err != nil {
		return fmt.Errorf("failed to compile frame: %w", err)
	}

	for i := range cfg.repeat {
		if i > 0 {
			timer := time.NewTimer(cfg.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := link.WritePacket(ctx, p); err != nil {
			return fmt.Errorf("send %d/%d failed: %w", i+1, cfg.repeat, err)
		}
		_, _ = fmt.Fprintf(out, "sent %s\n", formatFrame(p))
	}
	return nil
}

// runRead prints every frame received until ctx ends or the transport fails.
// Bad frames are reported through the link logger and skipped.
func runRead(ctx context.Context, link *packet.Link, out io.Writer) error {
	err := link.Serve(ctx, printingDispatcher(out))
	printStats(out, link.Stats())
	if err != nil {
		return fmt.Errorf("read loop ended: %w", err)
	}
	return nil
}

// runSession reads like runRead but reopens the device through open
// whenever the link fails.
func runSession(ctx context.Context, open session.OpenFunc, cfg *config, out io.Writer, log zerolog.Logger) error {
	sessionCfg := cfg.reconnect
	sessionCfg.LinkOptions = linkOptions(cfg, log)

	s := session.NewSession(open, printingDispatcher(out), &sessionCfg)
	s.OnStateChange = func(from, to session.State) {
		log.Info().Stringer("from", from).Stringer("to", to).Msg("session state")
	}
	s.OnIdle = func() {
		log.Warn().Dur("timeout", sessionCfg.IdleTimeout).Msg("peer silent")
	}

	err := s.Start(ctx)
	printStats(out, s.Stats())
	if err != nil {
		return fmt.Errorf("session ended after %d reconnects: %w", s.Reconnects(), err)
	}
	return nil
}

func printingDispatcher(out io.Writer) *packet.Dispatcher {
	d := packet.NewDispatcher()
	d.SetFallback(packet.HandlerFunc(func(_ context.Context, p *packet.Packet) (packet.Result, error) {
		_, _ = fmt.Fprintf(out, "recv %s\n", formatFrame(p))
		return packet.ResultComplete, nil
	}))
	return d
}

func formatFrame(p *packet.Packet) string {
	return fmt.Sprintf("id=0x%02X len=%d payload=%s",
		p.Identifier, len(p.Payload), strings.ToUpper(hex.EncodeToString(p.Payload)))
}

func printStats(out io.Writer, s packet.LinkStats) {
	_, _ = fmt.Fprintf(out,
		"frames=%d sent=%d noise=%d overflows=%d schema=%d length=%d crc=%d source=%d\n",
		s.Frames, s.FramesSent, s.NoiseBytes, s.Overflows,
		s.SchemaErrors, s.LengthErrors, s.CRCErrors, s.SourceErrors)
}

func run(ctx context.Context, cfg *config, out io.Writer, log zerolog.Logger) error {
	if cfg.list {
		return runList(out)
	}
	if cfg.detectOnly {
		return runDetect(ctx, cfg, out)
	}
	if cfg.device == "" {
		if err := autoDetect(ctx, cfg, log); err != nil {
			return err
		}
	}

	if cfg.keepAlive && cfg.send == "" {
		open := func(context.Context) (packet.Transport, error) {
			return newTransport(cfg)
		}
		return runSession(ctx, open, cfg, out, log)
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return err
	}
	link, err := newLink(transport, cfg, log)
	if err != nil {
		_ = transport.Close()
		return err
	}
	defer func() {
		if err := link.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close link")
		}
	}()

	log.Info().Str("device", cfg.device).Str("transport", string(transport.Type())).Msg("link open")

	if cfg.send != "" {
		return runSend(ctx, link, cfg, out)
	}
	return runRead(ctx, link, out)
}

func setupLogging(cfg *config) zerolog.Logger {
	if cfg.debug {
		packet.SetDebugEnabled(true)
	} else {
		packet.SetLogLevel(zerolog.WarnLevel)
	}
	return packet.Logger().With().Str("cmd", "packetcat").Logger()
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	cfg, err := parseArgs(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	log := setupLogging(cfg)
	if cfg.sessionLog {
		path, err := packet.InitSessionLog()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to open session log: %v\n", err)
		} else {
			log.Info().Str("path", path).Msg("session log open")
			defer func() {
				_ = packet.CloseSessionLog()
			}()
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, log); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
