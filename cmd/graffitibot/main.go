package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/HKUDS/graffitibot-go/pkg/config"
	"github.com/HKUDS/graffitibot-go/pkg/cron"
	"github.com/HKUDS/graffitibot-go/pkg/events"
	"github.com/HKUDS/graffitibot-go/pkg/graffiti"
	"github.com/HKUDS/graffitibot-go/pkg/imaging"
	"github.com/HKUDS/graffitibot-go/pkg/longpoll"
	"github.com/HKUDS/graffitibot-go/pkg/metrics"
	"github.com/HKUDS/graffitibot-go/pkg/transport"
	"github.com/HKUDS/graffitibot-go/pkg/upload"
	"github.com/HKUDS/graffitibot-go/pkg/utils"
	"github.com/HKUDS/graffitibot-go/pkg/vkapi"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: graffitibot <command> [args]")
		fmt.Println("Commands: run, onboard")
		os.Exit(1)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "run":
		err = runBot(os.Args[2:])
	case "onboard":
		err = runOnboard(os.Args[2:])
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runBot(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to config file (.json, .jsonc, .yaml)")
	wait := fs.Int("wait", 0, "Long-poll wait in seconds (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *wait > 0 {
		cfg.VK.Wait = *wait
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := utils.SetupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, sweeper, err := buildBot(cfg, logger)
	if err != nil {
		return err
	}

	metrics.Register()
	if cfg.Metrics.Addr != "" {
		go metrics.Serve(cfg.Metrics.Addr, logger)
	}

	if sweeper != nil {
		sweeper.Start()
		defer sweeper.Stop()
	}

	logger.Info("graffitibot running", zap.Int("group_id", cfg.VK.GroupID), zap.Int("wait", cfg.VK.Wait))
	err = session.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("graffitibot stopped")
		return nil
	}
	return err
}

// buildBot wires the long-poll session to the graffiti handler. The returned
// cron service is nil when cache sweeping is disabled.
func buildBot(cfg *config.Config, logger *zap.Logger) (*longpoll.Session, *cron.Service, error) {
	version, err := vkapi.ParseVersion(cfg.VK.APIVersion)
	if err != nil {
		return nil, nil, err
	}

	httpTransport := transport.NewHTTPTransport(cfg.HTTP.Timeout.Std(), logger.Named("transport"))

	client, err := vkapi.NewClient(vkapi.ClientConfig{
		Endpoint:    cfg.VK.Endpoint,
		Credentials: vkapi.Credentials{Token: cfg.VK.AccessToken, Version: version},
		Transport:   httpTransport,
		Logger:      logger.Named("vkapi"),
	})
	if err != nil {
		return nil, nil, err
	}

	composer, err := imaging.NewCaptionComposer(cfg.Bot.FontPath)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(cfg.Cache.Dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create cache dir: %w", err)
	}

	bot, err := graffiti.New(graffiti.Config{
		Sender:               client,
		Fetcher:              httpTransport,
		Uploader:             upload.NewFlow(client, httpTransport, logger.Named("upload")),
		Composer:             composer,
		CacheDir:             cfg.Cache.Dir,
		DefaultCharacterSize: cfg.Bot.DefaultCharacterSize,
		Logger:               logger.Named("graffiti"),
	})
	if err != nil {
		return nil, nil, err
	}

	handler := events.Guard(events.AllowFrom(cfg.Bot.AllowFrom, bot), bot, logger.Named("events"))
	dispatcher := events.NewDispatcher(handler, logger.Named("events"))
	session := longpoll.NewSession(client, cfg.VK.GroupID, dispatcher,
		longpoll.WithWait(cfg.VK.Wait),
		longpoll.WithLogger(logger.Named("longpoll")),
	)

	var sweeper *cron.Service
	if cfg.Cache.SweepSchedule != "" && cfg.Cache.MaxAge > 0 {
		sweeper = cron.NewService(logger.Named("cron"))
		job := cron.SweepJob(cfg.Cache.Dir, cfg.Cache.MaxAge.Std(), logger.Named("cron"))
		if _, err := sweeper.AddJob("sweep-cache", cfg.Cache.SweepSchedule, job); err != nil {
			return nil, nil, err
		}
	}

	return session, sweeper, nil
}

func runOnboard(args []string) error {
	fs := pflag.NewFlagSet("onboard", pflag.ContinueOnError)
	configDir := fs.StringP("dir", "d", ".graffitibot", "Directory to create the config in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	configFile := filepath.Join(*configDir, "config.json")
	if _, err := os.Stat(configFile); err == nil {
		fmt.Printf("Config file already exists at %s\n", configFile)
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	cfg := config.DefaultConfig()
	cfg.Cache.Dir = filepath.Join(*configDir, "cache")
	cfg.Log.Dir = filepath.Join(*configDir, "logs")
	if err := config.SaveConfig(configFile, cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Created config file at %s\n", configFile)

	for _, dir := range []string{cfg.Cache.Dir, cfg.Log.Dir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	fmt.Printf("Onboarding complete! Please edit %s to add your access token and group id, or set %s and %s.\n",
		configFile, config.EnvAccessToken, config.EnvGroupID)
	return nil
}
