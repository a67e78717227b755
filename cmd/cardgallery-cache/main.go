// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VKCOM/statshouse-go"
	"github.com/caarlos0/env/v11"
	"github.com/cloudflare/tableflip"
	"github.com/gorilla/handlers"
	"golang.org/x/sync/errgroup"

	"github.com/VKCOM/cardgallery/internal/cardapi"
	"github.com/VKCOM/cardgallery/internal/cardcache"
	"github.com/VKCOM/cardgallery/internal/cardcache/sqlitecache"
	"github.com/VKCOM/cardgallery/internal/config"
	"github.com/VKCOM/cardgallery/internal/vkgo/build"
	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

const (
	shutdownTimeout = 10 * time.Second
	exitTimeout     = 20 * time.Second
	upgradeTimeout  = 60 * time.Second

	httpReadHeaderTimeout = 10 * time.Second
	httpReadTimeout       = 30 * time.Second
	httpIdleTimeout       = 5 * time.Minute

	metricHeartbeat = "cardgallery_heartbeat"
)

var argv struct {
	accessLog         bool
	backendRPS        float64
	baseURL           string
	cacheFile         string
	cacheWAL          bool
	cacheTxDuration   time.Duration
	cardsFile         string
	configFile        string
	fakeBackend       bool
	fakeDropRate      float64
	help              bool
	listenAddr        string
	loggerConfig      string
	pidFile           string
	statsHouseNetwork string
	statsHouseAddr    string
	statsHouseEnv     string
	variants          []string
	version           bool

	cardcache.Config
}

// secrets never go to command line, where they are visible to every user of the host
type secrets struct {
	Token string `env:"CARDGALLERY_TOKEN"`
}

func main() {
	log.SetPrefix("[cardgallery-cache] ")
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lmsgprefix)
	os.Exit(run())
}

func run() int {
	if err := parseCommandLine(); err != nil {
		log.Println(err)
		return 1
	}
	if argv.help {
		flag.Usage()
		return 0
	}
	if argv.version {
		log.Println(build.Info())
		return 0
	}
	var sec secrets
	if err := env.Parse(&sec); err != nil {
		log.Printf("failed to parse environment: %v", err)
		return 1
	}

	logCfg := logz.DefaultConfig()
	if argv.loggerConfig != "" {
		var err error
		if logCfg, err = logz.LoadConfigFile(argv.loggerConfig); err != nil {
			log.Println(err)
			return 1
		}
	}
	logger, err := logz.New(logCfg)
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	tf, err := tableflip.New(tableflip.Options{
		PIDFile:        argv.pidFile,
		UpgradeTimeout: upgradeTimeout,
	})
	if err != nil {
		log.Printf("failed to init tableflip: %v", err)
		return 1
	}
	defer tf.Stop()

	go func() {
		ch := make(chan os.Signal, 3)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		for sig := range ch {
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				log.Printf("got %v, exiting...", sig)
				tf.Stop()
			case syscall.SIGHUP:
				log.Printf("got %v, upgrading...", sig)
				err := tf.Upgrade()
				if err != nil {
					log.Printf("upgrade failed: %v", err)
				}
			}
		}
	}()

	httpLn, err := tf.Listen("tcp", argv.listenAddr)
	if err != nil {
		log.Printf("failed to listen on %q: %v", argv.listenAddr, err)
		return 1
	}

	statshouse.ConfigureNetwork(logger.Printf, argv.statsHouseNetwork, argv.statsHouseAddr, argv.statsHouseEnv)
	defer func() { _ = statshouse.Close() }()

	if sec.Token == "" {
		if argv.fakeBackend {
			sec.Token = "fake-backend"
		} else {
			logger.Warn("CARDGALLERY_TOKEN is not set, image requests will fail")
		}
	}
	token := cardapi.NewBearerToken(sec.Token)

	// persistent tier and card listing are independent, SQLite integrity check may take a while
	var (
		g       errgroup.Group
		durable *cardcache.DurableStore
		cards   []cardcache.Card
	)
	g.Go(func() error {
		var opener cardcache.DiskCacheOpener
		if argv.cacheFile != "" {
			opener = sqlitecache.Opener(argv.cacheFile, sqlitecache.Options{TxDuration: argv.cacheTxDuration, WAL: argv.cacheWAL})
		}
		durable = cardcache.OpenDurableStore(context.Background(), opener, cardcache.DurableOptions{
			Namespace:   token.Namespace(),
			Budget:      argv.DurableBudget,
			OpenTimeout: argv.DurableOpenTimeout,
		}, logger)
		return nil
	})
	g.Go(func() error {
		var err error
		cards, err = loadCardListing(argv.cardsFile)
		return err
	})
	if err = g.Wait(); err != nil {
		log.Println(err)
		if durable != nil {
			_ = durable.Close()
		}
		return 1
	}
	defer func() {
		if err := durable.Close(); err != nil {
			log.Printf("failed to close persistent cache: %v", err)
		}
	}()

	baseURL := argv.baseURL
	var fake *cardapi.FakeServer
	if argv.fakeBackend {
		fake = cardapi.NewFakeServer(sec.Token, uint64(time.Now().UnixNano()))
		fake.DropRate = argv.fakeDropRate
		baseURL = "http://" + httpLn.Addr().String()
		logger.Info("serving fake image backend", logz.String("base_url", baseURL))
	}
	client := cardapi.NewClient(baseURL, token, argv.FetchTimeout, logger)
	client.SetRequestRate(argv.backendRPS)

	ephemeral := cardcache.NewEphemeralStore(argv.EphemeralTTL)
	h := &handler{
		caches:    map[cardcache.Variant]*cardcache.Cache{},
		ephemeral: ephemeral,
		durable:   durable,
		logger:    logger.NewSubsystem("http"),
	}
	for _, s := range argv.variants {
		v, _ := cardcache.ParseVariant(s) // checked by parseCommandLine
		if _, ok := h.caches[v]; ok {
			continue
		}
		c := cardcache.New(v, &argv.Config, ephemeral, durable, client, logger)
		c.SetCards(cards)
		h.caches[v] = c
	}
	defer func() {
		// in-flight batches of different variants complete independently
		var g errgroup.Group
		for _, c := range h.caches {
			c := c
			g.Go(func() error {
				c.Close()
				return nil
			})
		}
		_ = g.Wait()
	}()

	if argv.configFile != "" {
		cl := config.NewFileListener(argv.configFile, &argv.Config, logger.Printf)
		cl.AddChangeCB(func(cfg config.Config) {
			applyConfig(h, cfg.(*cardcache.Config))
			logger.Info("config applied", logz.String("path", argv.configFile))
		})
		if err = cl.Reload(); err != nil {
			log.Println(err)
			return 1
		}
		if err = cl.Watch(); err != nil {
			log.Printf("failed to watch config %q: %v", argv.configFile, err)
			return 1
		}
		defer func() { _ = cl.Close() }()
	}

	m := newRouter(h)
	if fake != nil {
		m.Path(cardapi.BatchImagesPath).Methods("POST").Handler(fake)
	}
	hh := http.Handler(m)
	hh = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(hh)
	hh = handlers.CompressHandler(hh)
	if argv.accessLog {
		hh = handlers.CombinedLoggingHandler(os.Stdout, hh)
	}
	hh = handlers.ProxyHeaders(hh)

	s := &http.Server{
		Handler:           hh,
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		IdleTimeout:       httpIdleTimeout,
	}
	go func() {
		err := s.Serve(httpLn)
		if err != http.ErrServerClosed {
			log.Printf("serving HTTP: %v", err)
		}
	}()

	startTimestamp := time.Now().Unix()
	heartbeatTags := statshouse.Tags{
		1: build.Version(),
		2: build.Commit(),
		3: fmt.Sprint(durable.Available()),
		4: fmt.Sprint(build.CommitTimestamp()),
	}
	defer statshouse.StopRegularMeasurement(statshouse.StartRegularMeasurement(func(c *statshouse.Client) {
		uptime := float64(time.Now().Unix() - startTimestamp)
		c.Value(metricHeartbeat, heartbeatTags, uptime)
	}))

	if err = tf.Ready(); err != nil {
		log.Printf("failed to become ready: %v", err)
		return 1
	}
	log.Printf("version %v listening HTTP at %q, variants %v, persistent cache %v", build.Version(), httpLn.Addr().String(), argv.variants, durable.Available())
	<-tf.Exit()

	time.AfterFunc(exitTimeout, func() {
		log.Printf("graceful shutdown timeout; exiting")
		os.Exit(1)
	})
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.Shutdown(ctx)
	return 0
}

func applyConfig(h *handler, cfg *cardcache.Config) {
	for _, c := range h.caches {
		c.ApplyConfig(cfg)
	}
	h.durable.SetBudget(cfg.DurableBudget)
}

func parseCommandLine() error {
	flag.BoolVar(&argv.accessLog, "access-log", false, "write HTTP access log to stdout")
	flag.Float64Var(&argv.backendRPS, "backend-rps", 0, "image requests per second of all variants together, 0 means no limit")
	flag.StringVar(&argv.baseURL, "base-url", "", "gallery backend base URL")
	flag.StringVar(&argv.cacheFile, "cache-file", "cardgallery_cache.db", "persistent image cache filename, empty disables persistent cache")
	flag.BoolVar(&argv.cacheWAL, "cache-wal", false, "use write-ahead log for persistent image cache")
	flag.DurationVar(&argv.cacheTxDuration, "cache-tx-duration", sqlitecache.DefaultTxDuration, "persistent cache writes are committed at least this often")
	flag.StringVar(&argv.cardsFile, "cards-file", "", "JSON card listing to start with")
	flag.StringVar(&argv.configFile, "config-file", "", "file with one --flag=value per line, reloaded on change")
	flag.BoolVar(&argv.fakeBackend, "fake-backend", false, "serve generated images from built-in fake backend instead of --base-url")
	flag.Float64Var(&argv.fakeDropRate, "fake-drop-rate", 0, "probability of fake backend omitting a card from response")
	flag.BoolVar(&argv.help, "help", false, "print usage instructions and exit")
	flag.StringVar(&argv.listenAddr, "listen-addr", "localhost:8090", "local HTTP listen address")
	flag.StringVar(&argv.loggerConfig, "logger-config", "", "logger yaml config, defaults to info level console output")
	flag.StringVar(&argv.pidFile, "pid-file", "cardgallery_cache.pid", "path to PID file") // for table flip
	flag.StringVar(&argv.statsHouseNetwork, "statshouse-network", statshouse.DefaultNetwork, "udp or unixgram")
	flag.StringVar(&argv.statsHouseAddr, "statshouse-addr", statshouse.DefaultAddr, "address of udp socket or path to unix socket")
	flag.StringVar(&argv.statsHouseEnv, "statshouse-env", "dev", "fill key0/environment with this value in StatHouse statistics")
	config.StringSliceVar(flag.CommandLine, &argv.variants, "variants", "thumb,full", "comma-separated list of image variants to serve")
	flag.BoolVar(&argv.version, "version", false, "show version information and exit")
	argv.Config.Bind(flag.CommandLine, cardcache.DefaultConfig())
	flag.Parse()

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected command line arguments, check command line for typos: %q", flag.Args())
	}
	if argv.help || argv.version {
		return nil
	}
	if argv.baseURL == "" && !argv.fakeBackend {
		return fmt.Errorf("--base-url or --fake-backend must be specified")
	}
	if len(argv.variants) == 0 {
		return fmt.Errorf("--variants must not be empty")
	}
	for _, s := range argv.variants {
		if _, err := cardcache.ParseVariant(s); err != nil {
			return fmt.Errorf("--variants: %w", err)
		}
	}
	if argv.backendRPS < 0 {
		return fmt.Errorf("--backend-rps (%v) must not be negative", argv.backendRPS)
	}
	if argv.fakeDropRate < 0 || argv.fakeDropRate > 1 {
		return fmt.Errorf("--fake-drop-rate (%v) must be between 0 and 1", argv.fakeDropRate)
	}
	return argv.Config.ValidateConfig()
}
