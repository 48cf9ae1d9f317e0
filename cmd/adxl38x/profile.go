package main

import (
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/adxl38x/cmd/adxl38x/console"
	"github.com/mklimuk/adxl38x/config"
)

var profileCmd = cli.Command{
	Name:  "profile",
	Usage: "device profile helpers",
	Subcommands: cli.Commands{
		&cli.Command{
			Name:      "init",
			Usage:     "write the default profile",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite an existing file"},
			},
			Action: func(c *cli.Context) error {
				path := c.Args().First()
				if path == "" {
					path = "adxl38x.yaml"
				}
				if err := config.Default().Save(path, c.Bool("force")); err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				console.PInfof(console.PictoCheck, "profile written to %s", path)
				return nil
			},
		},
		&cli.Command{
			Name:  "show",
			Usage: "print the effective profile",
			Action: func(c *cli.Context) error {
				p, err := loadProfile(c)
				if err != nil {
					return console.Exit(1, "profile error: %s", console.Red(err))
				}
				console.Printf("%s\n", console.Bold("# effective profile"))
				return yaml.NewEncoder(console.Writer()).Encode(p)
			},
		},
	},
}
