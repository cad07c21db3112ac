package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"periph.io/x/conn/v3/physic"

	"inkband/internal/config"
	"inkband/internal/epd"
	appLog "inkband/internal/log"
	"inkband/internal/render"
	"inkband/internal/surface"
	"inkband/internal/web"
)

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath string
	listen     string
	renderOnly bool
	ticks      uint64
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("inkband starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"width", conf.Panel.Width,
		"height", conf.Panel.Height,
		"lut", conf.Panel.LUT,
		"interval", conf.Render.Interval,
		"band_height", conf.Render.BandHeight,
		"render_only", flags.renderOnly,
		"ticks", flags.ticks,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("inkband failed", err)
		os.Exit(1)
	}
	appLog.Info("inkband exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	bus, closer, err := openBus(conf, flags.renderOnly)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	opts := &epd.Opts{
		Geometry:     epd.Geometry{Width: conf.Panel.Width, Height: conf.Panel.Height},
		MaxBusyPolls: conf.Panel.MaxBusyPolls,
	}
	if w := conf.Panel.Waveforms; w != nil {
		opts.Waveforms = &epd.Waveforms{VCOM: w.VCOM, WW: w.WW, BW: w.BW, WB: w.WB, BB: w.BB}
	}
	panel, err := epd.New(bus, opts)
	if err != nil {
		return err
	}
	lut, err := epd.ParseLUT(conf.Panel.LUT)
	if err != nil {
		return err
	}
	if err := panel.Reset(); err != nil {
		return err
	}
	if err := panel.Setup(lut); err != nil {
		return err
	}
	appLog.Info("panel ready", "panel", panel.String(), "lut", lut.String())

	surf, err := surface.New(conf.Panel.Width, conf.Panel.Height)
	if err != nil {
		return err
	}
	policy, err := render.NewPolicy(conf.Render.FullRefreshEvery, conf.Render.FullRefreshCron)
	if err != nil {
		return err
	}

	srv := web.NewServer(conf)
	loop, err := render.New(panel, surf, &render.Options{
		BandHeight: conf.Render.BandHeight,
		Labels:     conf.Render.Labels,
		Interval:   conf.Render.Interval,
		Policy:     policy,
		Observer:   srv,
		MaxTicks:   flags.ticks,
	})
	if err != nil {
		return err
	}

	srvCtx, stopSrv := context.WithCancel(ctx)
	var srvDone <-chan error
	if conf.Listen != "" {
		srvDone = serveInBackground(srvCtx, srv.Serve)
	} else {
		done := make(chan error, 1)
		done <- nil
		srvDone = done
	}

	runErr := loop.Run(ctx)

	// Leave the panel in deep sleep whatever happened to the loop. A faulted
	// controller refuses, which is fine.
	if err := panel.Sleep(); err != nil {
		appLog.Warn("failed to put panel to sleep", "err", err)
	}

	stopSrv()
	if err := <-srvDone; err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

// serveInBackground runs serve in its own goroutine. A failure is logged as
// soon as serve returns so it is not hidden behind a long-running loop; the
// returned channel yields the same error once.
func serveInBackground(ctx context.Context, serve func(context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := serve(ctx)
		if err != nil {
			appLog.Error("HTTP server failed", err)
		}
		done <- err
	}()
	return done
}

// openBus returns the SPI bus described by conf, or a simulated bus when no
// hardware should be touched.
func openBus(conf *config.Config, renderOnly bool) (epd.Bus, io.Closer, error) {
	if renderOnly {
		appLog.Info("render-only: using simulated bus")
		return &epd.SimBus{RefreshPolls: 2}, nil, nil
	}
	b, err := epd.OpenSPI(epd.SPIConfig{
		Port:      conf.Bus.SPIPort,
		Frequency: physic.Frequency(conf.Bus.SPIHz) * physic.Hertz,
		DC:        conf.Bus.DC,
		CS:        conf.Bus.CS,
		Reset:     conf.Bus.Reset,
		Busy:      conf.Bus.Busy,
		Enable:    conf.Bus.Enable,
	})
	if err != nil {
		return nil, nil, err
	}
	appLog.Info("opened SPI bus", "bus", b.String())
	return b, b, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", config.DefaultPath, "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Drive a simulated bus; do not touch display hardware")
	flag.Uint64Var(&cfg.ticks, "ticks", 0, "Stop after this many ticks (0 runs until interrupted)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
