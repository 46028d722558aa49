package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"tsic/pkg/app"
	"tsic/pkg/app/config"
	"tsic/pkg/tsic"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	// cfg holds the application configuration
	cfg := config.NewConfig()

	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "Temperature reader for TSIC sensors over ZACWire",
		Version: app.VERSION,
		Description: "Read the temperature of a TSIC 206/306/506/716 sensor connected to a gpio pin and write values to mqtt" +
			"\n the sensor sends a packet of two bytes over the single wire ZACWire protocol (8 kHz bit clock)," +
			"\n every edge is timestamped by the gpio driver (gpiod, gpiomem) or by the emulator.",
		UsageText: "tsic [--config <file>] [--log standard|debug|trace] [--gpio <pin>] [--type 206|306|506|716] [--once]" +
			"\n\nEXAMPLE:" +
			"\n\tstart the reader and use the configuration file tsic.yaml" +
			"\n\t\ttsic --config /opt/womat/config/tsic.yaml" +
			"\n\tread one temperature of a TSic 506 on gpio 17" +
			"\n\t\ttsic --gpio 17 --type 506 --once --timeout 500ms",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Usage: "load configuration from `FILE` (yaml or toml)"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.LogLevel, Usage: "`LEVEL` defines the log level (standard|debug|trace)"},
			&cli.IntFlag{Name: "gpio", Aliases: []string{"g"}, Destination: &cfg.Flag.Gpio, Value: -1, Usage: "read the sensor on gpio `PIN`"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Destination: &cfg.Flag.Type, Usage: "`TYPE` of the sensor (" + strings.Join(tsic.TypeNames(), "|") + ")"},
			&cli.StringFlag{Name: "driver", Aliases: []string{"d"}, Destination: &cfg.Flag.Driver, Usage: "gpio `DRIVER` (gpiod|gpiomem|emulator)"},
			&cli.BoolFlag{Name: "emulate", Aliases: []string{"e"}, Destination: &cfg.Flag.Emulate, Usage: "use an emulated sensor instead of the gpio driver"},
			&cli.BoolFlag{Name: "once", Aliases: []string{"o"}, Destination: &cfg.Flag.Once, Usage: "print one measurement and exit"},
			&cli.DurationFlag{Name: "timeout", Destination: &cfg.Flag.Timeout, Value: time.Second, Usage: "wait `DURATION` for a measurement"},
		},
		Action: func(ctx *cli.Context) error {
			if err := cfg.LoadConfig(); err != nil {
				return err
			}

			debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)
			defer func() {
				if cfg.Debug.File != os.Stderr && cfg.Debug.File != os.Stdout {
					debug.InfoLog.Printf("closing debug file %s", cfg.Debug.FileString)
					_ = cfg.Debug.File.Close()
				}
			}()

			a, err := app.New(cfg)
			defer func() {
				debug.InfoLog.Printf("closing app %s", app.Version())
				_ = a.Close()
			}()

			if err != nil {
				return err
			}

			if cfg.Flag.Once {
				return once(a, cfg.Flag.Timeout)
			}

			debug.InfoLog.Printf("starting app %s", app.Version())
			if err = a.Run(); err != nil {
				return err
			}

			// capture exit signals to ensure resources are released on exit.
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			// wait for am os.Interrupt signal (CTRL C)
			sig := <-quit
			debug.InfoLog.Printf("Got %s signal. Aborting...", sig)

			return nil
		},
	}

	// we expect to have more command line flags in the future - sort them
	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	err := cliApp.Run(os.Args)
	if err != nil {
		debug.FatalLog.Print(err)
		exitCode = 1
		return
	}

	exitCode = 0
}

// once prints one measurement to stdout.
func once(a *app.App, timeout time.Duration) error {
	m, err := a.MeasureOnce(timeout)
	if err != nil {
		return err
	}

	fmt.Printf("%.3f\n", m.DegreeCelsius)
	return nil
}
