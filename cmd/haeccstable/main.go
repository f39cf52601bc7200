// Command haeccstable runs the Haeccstable core: the command socket, the
// state manager and its dossier, and the optional monitor, engine bridge
// and event journal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/Haeccstable/internal/api"
	"github.com/AaronLay10/Haeccstable/internal/config"
	"github.com/AaronLay10/Haeccstable/internal/dossier"
	"github.com/AaronLay10/Haeccstable/internal/events"
	"github.com/AaronLay10/Haeccstable/internal/ipc"
	"github.com/AaronLay10/Haeccstable/internal/logging"
	"github.com/AaronLay10/Haeccstable/internal/mqtt"
	"github.com/AaronLay10/Haeccstable/internal/registry"
	"github.com/AaronLay10/Haeccstable/internal/router"
	"github.com/AaronLay10/Haeccstable/internal/state"
	"github.com/AaronLay10/Haeccstable/internal/storage/postgres"
	"github.com/AaronLay10/Haeccstable/internal/version"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to haeccstable.yaml")
		socketPath  = flag.String("socket", "", "command socket path (overrides config)")
		dossierPath = flag.String("dossier", "", "dossier file path (overrides config)")
		logLevel    = flag.String("log-level", "", "log level (overrides config)")
		monitorAddr = flag.String("monitor", "", "enable the monitor API on this address")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("haeccstable"))
		return
	}

	path, required := config.ConfigPath(*configPath)
	cfg, err := config.Load(path, required)
	if err != nil {
		fmt.Fprintf(os.Stderr, "haeccstable: config: %v\n", err)
		os.Exit(2)
	}
	if *socketPath != "" {
		cfg.Server.SocketPath = *socketPath
	}
	if *dossierPath != "" {
		cfg.Dossier.Path = *dossierPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *monitorAddr != "" {
		cfg.Monitor.Enabled = true
		cfg.Monitor.Addr = *monitorAddr
	}

	if _, err := logging.Configure(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		App:    "haeccstable",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "haeccstable: logging: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("haeccstable exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	readiness := api.NewReadiness()

	store := dossier.Open(cfg.Dossier.Path, cfg.Dossier.Description)
	readiness.Set("dossier", store.LastError() == nil, false)

	sessionID := cfg.Journal.SessionID
	if sessionID == "" {
		sessionID = store.Document().Session.ID
	}

	if cfg.Journal.Enabled {
		pg, err := postgres.New(ctx, postgres.Options{
			Host:     cfg.Journal.Host,
			Port:     cfg.Journal.Port,
			User:     cfg.Journal.User,
			Database: cfg.Journal.Database,
			Password: cfg.Journal.Password,
		})
		if err != nil {
			log.Warn().Err(err).Msg("event journal unavailable, continuing without it")
			readiness.Set("journal", false, true)
		} else {
			defer pg.Close()
			events.SetJournal(pg, sessionID)
			defer events.SetJournal(nil, "")
			readiness.Set("journal", true, true)
		}
	}

	st := state.New(store)
	reg := registry.New(nil)
	rt := router.New(st, reg)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Engine.Enabled {
		client := startEngineBridge(gctx, g, cfg.Engine, st, reg, readiness)
		defer client.Disconnect()
	}

	server := ipc.NewServer(ipc.Options{
		SocketPath:     cfg.Server.SocketPath,
		IdleTimeout:    cfg.Server.IdleTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxConnections: cfg.Server.MaxConnections,
	}, rt)
	if err := server.Start(); err != nil {
		return err
	}
	readiness.Set("socket", true, false)

	g.Go(func() error {
		<-gctx.Done()
		server.Stop()
		readiness.Set("socket", false, false)
		return nil
	})

	if cfg.Monitor.Enabled {
		mon := api.NewServer(api.Options{
			Addr:        cfg.Monitor.Addr,
			State:       st,
			Connections: server,
			Requests:    rt,
			Readiness:   readiness,
		})
		g.Go(func() error {
			return mon.Run(gctx)
		})
	}

	events.Emit("info", "system.startup", "haeccstable started", map[string]interface{}{
		"version": version.Version,
		"socket":  server.Path(),
		"dossier": store.Path(),
		"session": sessionID,
		"pid":     os.Getpid(),
	})

	err := g.Wait()

	sum := st.StateSummary(false)
	events.Emit("info", "system.shutdown", "haeccstable stopping", map[string]interface{}{
		"requests": rt.Stats().Requests,
		"entities": sum.Total(),
	})
	events.CloseAllSubscribers()

	if ferr := store.Flush(); ferr != nil {
		log.Error().Err(ferr).Str("path", store.Path()).Msg("final dossier write failed")
		if err == nil {
			err = ferr
		}
	}
	return err
}

// startEngineBridge connects to the broker and routes process execution to
// the media engine. A broker that is down at startup is retried in the
// background.
func startEngineBridge(ctx context.Context, g *errgroup.Group, cfg config.EngineConfig, st *state.Manager, reg *registry.Registry, readiness *api.Readiness) *mqtt.Client {
	monitor := mqtt.NewMonitor(st, cfg.HeartbeatTolerance)

	var sub *mqtt.EngineSubscriber
	client := mqtt.NewClient(mqtt.Options{
		BrokerURL: cfg.BrokerURL,
		ClientID:  cfg.ClientID,
		OnConnect: func() {
			readiness.Set("engine", true, true)
			sub.ClearSubscriptions()
			if err := sub.SubscribeAll(); err != nil {
				log.Warn().Err(err).Msg("engine topic subscription incomplete")
			}
		},
	})
	bridge := mqtt.NewBridge(client, cfg.TopicPrefix)
	sub = mqtt.NewEngineSubscriber(client, bridge, monitor)
	reg.SetEngine(bridge)
	readiness.Set("engine", false, true)

	if err := client.Connect(); err != nil {
		log.Warn().Err(err).Str("broker", cfg.BrokerURL).Msg("engine broker unavailable, retrying in background")
	}

	g.Go(func() error {
		monitor.Run(ctx, time.Second)
		return nil
	})
	return client
}
