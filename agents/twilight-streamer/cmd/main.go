package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/urfave/cli"

	twilightstreamer "twilight-stack/agents/twilight-streamer"
	"twilight-stack/internal/version"
	"twilight-stack/shared/config"
)

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "config, c",
		Usage:  "path to the YAML configuration",
		EnvVar: "CONFIG_FILE",
		Value:  "config.yaml",
	},
	cli.StringFlag{
		Name:  "env",
		Usage: "dotenv file loaded before the configuration",
		Value: ".env",
	},
}

func main() {
	app := cli.App{
		Name:      "twilight-streamer",
		HelpName:  "twilight-streamer",
		Usage:     "streams the allsky camera from dusk to dawn",
		UsageText: "twilight-streamer [--config FILE] [command]",
		Version:   version.Version,
		Flags:     globalFlags,
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "run the scheduler until interrupted (default)",
				Action: run,
			},
			{
				Name:   "window",
				Usage:  "print tonight's twilight window and exit",
				Action: window,
			},
			{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "print version information",
				Action: func(*cli.Context) error {
					fmt.Println(version.Full())
					return nil
				},
			},
		},
		Action:      run,
		HideVersion: true,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, log, closeLog, err := setup(c)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info("starting", slog.String("version", version.Full()))

	// Create context that responds to signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	streamer := twilightstreamer.NewStreamer(cfg, log)
	if err := streamer.Run(ctx); err != nil {
		return cli.NewExitError(fmt.Sprintf("streamer failed: %v", err), 1)
	}
	return nil
}

func window(c *cli.Context) error {
	cfg, log, closeLog, err := setup(c)
	if err != nil {
		return err
	}
	defer closeLog()

	streamer := twilightstreamer.NewStreamer(cfg, log)
	w, err := streamer.Tonight()
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("failed to compute twilight window: %v", err), 1)
	}

	display := streamer.Display()
	fmt.Printf("Twilight window for %s (%s):\n", cfg.Location, cfg.Twilight.Horizon)
	fmt.Printf("  start: %s  (%s)\n", w.Start.UTC().Format(time.RFC3339), display.Format(w.Start))
	fmt.Printf("  end:   %s  (%s)\n", w.End.UTC().Format(time.RFC3339), display.Format(w.End))
	fmt.Printf("  duration: %s\n", w.Duration().Round(time.Minute))
	return nil
}

// setup loads the configuration named by the global flags and builds the
// logger. The returned func closes the log file, if one was opened.
func setup(c *cli.Context) (*config.Config, *slog.Logger, func(), error) {
	configFile, envFile := c.GlobalString("config"), c.GlobalString("env")
	if configFile == "" {
		configFile = c.String("config")
	}
	if envFile == "" {
		envFile = c.String("env")
	}

	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return nil, nil, nil, cli.NewExitError(fmt.Sprintf("Failed to load configuration: %v", err), 1)
	}

	var out io.Writer = os.Stdout
	noColor := false
	closeLog := func() {}
	if cfg.Logger.File != "" {
		f, err := os.OpenFile(cfg.Logger.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, nil, cli.NewExitError(fmt.Sprintf("Failed to open log file: %v", err), 1)
		}
		out = io.MultiWriter(os.Stdout, f)
		noColor = true
		closeLog = func() { f.Close() }
	}

	log := slog.New(tint.NewHandler(out, &tint.Options{
		Level:      cfg.Logger.SlogLevel(),
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}))
	slog.SetDefault(log)
	return cfg, log, closeLog, nil
}
