package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mollebakken/artconnect/cmd/artconnect/internal/commands"
	"github.com/mollebakken/artconnect/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Login     commands.LoginCmd     `cmd:"" help:"Sign in with email and password"`
		QRLogin   commands.QRLoginCmd   `cmd:"" name:"qr-login" help:"Sign in with a scanned QR payload"`
		Logout    commands.LogoutCmd    `cmd:"" help:"Sign out and clear the offline credential cache"`
		Status    commands.StatusCmd    `cmd:"" help:"Show the current session"`
		Provision commands.ProvisionCmd `cmd:"" help:"Issue parent QR cards"`
		Debug     bool                  `help:"Enable debug mode."`
		Version   kong.VersionFlag
	}
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
