package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	provcli "github.com/nyx-io/provisioner/cli"
)

var version = "v0.0.0-dev"

func main() {
	// An optional .env seeds the run configuration; absence is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:     "nyx-provisioner",
		Usage:    "turn a blank or dual-boot disk plus a configuration repository into a bootable system",
		Version:  version,
		Commands: provcli.CliCommands(),
	}
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}
