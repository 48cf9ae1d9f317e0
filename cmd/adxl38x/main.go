package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "adxl38x"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "ADXL380/ADXL382 accelerometer cli"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "device profile (yaml)",
			EnvVars: []string{"ADXL38X_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "driver",
			Usage: "spi driver: periph, gobot or sim",
		},
		&cli.StringFlag{
			Name:  "device",
			Usage: "periph spi port name, e.g. SPI0.0",
		},
		&cli.IntFlag{
			Name:  "spi-bus",
			Usage: "gobot spi bus number",
		},
		&cli.IntFlag{
			Name:  "spi-chip",
			Usage: "gobot spi chip number",
		},
		&cli.StringFlag{
			Name:  "cs",
			Usage: "host gpio used as chip select",
		},
		&cli.StringFlag{
			Name:  "cs-adapter",
			Usage: "chip select source: gpio or mcp2221",
		},
		&cli.IntFlag{
			Name:  "cs-pin",
			Usage: "MCP2221 GP pin used as chip select",
		},
		&cli.Int64Flag{
			Name:  "speed",
			Usage: "spi clock in Hz",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&identifyCmd,
		&resetCmd,
		&applyCmd,
		&setCmd,
		&showCmd,
		&fifoCmd,
		&regCmd,
		&profileCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		log.Printf("unexpected error: %v", err)
		return 1
	}
	return 0
}
