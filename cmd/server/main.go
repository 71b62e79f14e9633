package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/woozymasta/go3dep/internal/cache"
	"github.com/woozymasta/go3dep/internal/config"
	"github.com/woozymasta/go3dep/internal/elevation"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/logger"
	"github.com/woozymasta/go3dep/internal/server"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE"    description:"Path to configuration file"`
	Addr       string `short:"a" long:"addr"   env:"LISTEN_ADDRESS" description:"Address to listen on"           default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"   env:"LISTEN_PORT"    description:"Port to listen on"              default:"8080"`
	TilesDir   string `short:"t" long:"tiles"  env:"TILES_DIR"      description:"Directory of pre-rendered preview tiles"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	store, err := cache.Open(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open response cache")
	}
	defer func() { _ = store.Close() }()

	client := fetch.New(fetch.NewHTTPClient(cfg.HTTP.Timeout), store, cfg.HTTP)
	svc, err := elevation.New(cfg, client)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create elevation service")
	}

	srvCtx := server.NewServerContext(cfg, svc, opts.TilesDir)
	handler := server.NewMux(srvCtx)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	log.Info().
		Str("addr", listenAddr).
		Str("cache", cfg.Cache.Backend).
		Str("working_crs", cfg.Profile.WorkingCRS).
		Msg("Web server started")

	if err := http.ListenAndServe(listenAddr, handler); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
