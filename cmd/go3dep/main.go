package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/woozymasta/go3dep/internal/cache"
	"github.com/woozymasta/go3dep/internal/config"
	"github.com/woozymasta/go3dep/internal/elevation"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE" description:"Path to configuration file"`
}

var (
	opts  Options
	cfg   *config.Config
	store cache.Store
)

// newService builds the elevation service from the loaded configuration.
func newService() (*elevation.Service, error) {
	client := fetch.New(fetch.NewHTTPClient(cfg.HTTP.Timeout), store, cfg.HTTP)
	return elevation.New(cfg, client)
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = false

	commands := []struct {
		data  any
		name  string
		short string
	}{
		{&MapCommand{}, "map", "Retrieve 3DEP WMS layers over an area"},
		{&DEMCommand{}, "dem", "Retrieve a DEM over an area"},
		{&CoordsCommand{}, "coords", "Elevation of points read from CSV"},
		{&GridCommand{}, "grid", "Elevation on a regular grid"},
		{&ProfileCommand{}, "profile", "Elevation profile along a line"},
		{&AvailabilityCommand{}, "availability", "Check 3DEP resolutions available over a bbox"},
		{&SourcesCommand{}, "sources", "List 3DEP source datasets over a bbox"},
		{&PurgeCommand{}, "cache-purge", "Remove expired entries of the sqlite response cache"},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, "", c.data); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		opts.Logger.Setup()

		var err error
		if cfg, err = config.Load(opts.ConfigFile); err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if store, err = cache.Open(cfg.Cache); err != nil {
			return fmt.Errorf("open response cache: %w", err)
		}
		defer func() { _ = store.Close() }()

		return cmd.Execute(args)
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Command failed")
	}
}
