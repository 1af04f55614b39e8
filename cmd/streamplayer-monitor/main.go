// ABOUTME: Entry point for the event feed monitor
// ABOUTME: Finds a player with mDNS or a given address and logs its events until interrupted
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

	"github.com/Resonate-Protocol/streamplayer-go/internal/discovery"
	"github.com/Resonate-Protocol/streamplayer-go/internal/eventfeed"
	"github.com/Resonate-Protocol/streamplayer-go/internal/logger"
	"go.uber.org/zap"
)

var (
	addr    = flag.String("addr", "", "Player event feed address (skip mDNS)")
	name    = flag.String("name", "", "Client name (default: hostname-monitor)")
	logFile = flag.String("log-file", "", "Also write JSON logs to this file")
	debug   = flag.Bool("debug", false, "Enable debug logging")
	browse  = flag.Duration("browse", discovery.DefaultBrowseTimeout, "mDNS browse timeout")
)

func main() {
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	lg, closeLog, err := logger.New(logger.Config{Level: level, File: *logFile, Console: true})
	if err != nil {
		log.Fatalf("error setting up logging: %v", err)
	}
	defer closeLog()

	clientName := *name
	if clientName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		clientName = fmt.Sprintf("%s-monitor", hostname)
	}

	target := *addr
	if target == "" {
		target, err = findPlayer(*browse, lg)
		if err != nil {
			lg.Fatal("No player to monitor", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := eventfeed.Dial(dialCtx, eventfeed.DialConfig{Addr: target, Name: clientName, Logger: lg})
	cancel()
	if err != nil {
		lg.Fatal("Failed to connect", zap.String("addr", target), zap.Error(err))
	}
	defer client.Close()

	hello := client.Hello()
	lg.Info("Connected",
		zap.String("player", hello.Name),
		zap.String("server_id", hello.ServerID),
		zap.String("status", hello.Status),
		zap.Strings("commands", hello.Commands))

	for {
		select {
		case <-ctx.Done():
			lg.Info("Shutting down")
			return
		case msg, ok := <-client.Events():
			if !ok {
				lg.Info("Player closed the connection")
				return
			}
			logEvent(lg, msg)
		}
	}
}

func findPlayer(timeout time.Duration, lg *zap.Logger) (string, error) {
	mgr := discovery.NewManager(discovery.Config{Logger: lg})
	defer mgr.Stop()

	lg.Info("Browsing for players", zap.Duration("timeout", timeout))
	players, err := mgr.Browse(timeout)
	if err != nil {
		return "", err
	}
	if len(players) == 0 {
		return "", fmt.Errorf("no players found within %s", timeout)
	}
	for _, p := range players[1:] {
		lg.Info("Ignoring additional player", zap.String("name", p.Name), zap.String("addr", p.Addr()))
	}
	lg.Info("Found player", zap.String("name", players[0].Name), zap.String("addr", players[0].Addr()))
	return players[0].Addr(), nil
}

func logEvent(lg *zap.Logger, msg eventfeed.Message) {
	switch msg.Type {
	case eventfeed.TypeOpened:
		var o eventfeed.Opened
		if err := msg.Decode(&o); err != nil {
			lg.Warn("Bad opened event", zap.Error(err))
			return
		}
		lg.Info("Opened", zap.String("origin", o.Origin), zap.Any("properties", o.Properties))
	case eventfeed.TypeStatus:
		var s eventfeed.Status
		if err := msg.Decode(&s); err != nil {
			lg.Warn("Bad status event", zap.Error(err))
			return
		}
		lg.Info("Status", zap.String("status", s.Status), zap.Int64("position", s.Position), zap.String("description", s.Description))
	case eventfeed.TypeProgress:
		var p eventfeed.Progress
		if err := msg.Decode(&p); err != nil {
			lg.Warn("Bad progress event", zap.Error(err))
			return
		}
		lg.Debug("Progress",
			zap.Int64("encoded_bytes", p.EncodedBytes),
			zap.Duration("position", time.Duration(p.Microseconds)*time.Microsecond))
	default:
		lg.Debug("Message", zap.String("type", msg.Type), zap.ByteString("payload", msg.Payload))
	}
}
