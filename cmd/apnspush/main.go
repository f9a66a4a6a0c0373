// Command apnspush sends a single notification through the APNs gateway.
//
//	apnspush -cert cert.pem -key key.pem -topic com.example.app -token <hex> -message "hello"
//
// Every flag defaults to the matching APNS_* environment variable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sideshow/apns2/payload"

	"github.com/tinywideclouds/go-apns-service/internal/platform/apns"
	"github.com/tinywideclouds/go-apns-service/notificationservice/config"
	apnsclient "github.com/tinywideclouds/go-apns-service/pkg/apns"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "apnspush:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var cfg config.APNSConfig
	if err := config.ApplyAPNSEnvOverrides(&cfg, logger); err != nil {
		return err
	}

	fs := flag.NewFlagSet("apnspush", flag.ContinueOnError)
	fs.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "client certificate (PEM, combined PEM or .p12)")
	fs.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "private key for a PEM certificate")
	fs.StringVar(&cfg.CertPassword, "password", cfg.CertPassword, "certificate password")
	fs.StringVar(&cfg.AuthKeyFile, "auth-key", cfg.AuthKeyFile, "p8 signing key for token authentication")
	fs.StringVar(&cfg.KeyID, "key-id", cfg.KeyID, "p8 key id")
	fs.StringVar(&cfg.TeamID, "team-id", cfg.TeamID, "developer team id")
	fs.StringVar(&cfg.Topic, "topic", cfg.Topic, "app bundle id")
	fs.BoolVar(&cfg.Development, "dev", cfg.Development, "use the development gateway")
	fs.StringVar(&cfg.Priority, "priority", cfg.Priority, "immediate or delayed")
	fs.StringVar(&cfg.InflightPolicy, "inflight-policy", cfg.InflightPolicy, "keep, discard or abort")
	deviceToken := fs.String("token", "", "device token (hex)")
	message := fs.String("message", "", "alert text")
	title := fs.String("title", "", "alert title")
	sound := fs.String("sound", "", "sound name")
	badge := fs.Int("badge", -1, "badge count, -1 leaves it unset")
	timeout := fs.Duration("timeout", 30*time.Second, "overall deadline")
	verbose := fs.Bool("v", false, "log connection events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *deviceToken == "" || *message == "" {
		fs.Usage()
		return fmt.Errorf("-token and -message are required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	conn, err := apns.NewConnection(cfg, logger)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	opts, err := apns.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	sendOpts := []apnsclient.SendOption{apnsclient.WithPriority(opts.Priority)}
	if opts.Topic != "" {
		sendOpts = append(sendOpts, apnsclient.WithTopic(opts.Topic))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	id, err := conn.Send(ctx, buildPayload(*title, *message, *sound, *badge), *deviceToken, sendOpts...)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func buildPayload(title, message, sound string, badge int) *payload.Payload {
	if title == "" && sound == "" && badge < 0 {
		return apnsclient.PayloadFromString(message)
	}
	p := payload.NewPayload().AlertBody(message)
	if title != "" {
		p.AlertTitle(title)
	}
	if sound != "" {
		p.Sound(sound)
	}
	if badge >= 0 {
		p.Badge(badge)
	}
	return p
}
