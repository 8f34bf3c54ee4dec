package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/StoryEngine/internal/api"
	"github.com/AaronLay10/StoryEngine/internal/audio"
	"github.com/AaronLay10/StoryEngine/internal/audio/ebitenaudio"
	"github.com/AaronLay10/StoryEngine/internal/comic"
	"github.com/AaronLay10/StoryEngine/internal/config"
	"github.com/AaronLay10/StoryEngine/internal/events"
	"github.com/AaronLay10/StoryEngine/internal/export"
	"github.com/AaronLay10/StoryEngine/internal/media"
	"github.com/AaronLay10/StoryEngine/internal/mqtt"
	"github.com/AaronLay10/StoryEngine/internal/orchestrator"
	"github.com/AaronLay10/StoryEngine/internal/storage/postgres"
	"github.com/AaronLay10/StoryEngine/internal/version"
)

func loadConfig(path string) *config.EngineConfig {
	cfg, err := config.LoadEngineConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("%s not found, using defaults", path)
		return &config.EngineConfig{Version: 1}
	}
	if err != nil {
		log.Fatalf("failed to load %s: %v", path, err)
	}
	return cfg
}

func connectPostgres(cfg *config.EngineConfig, engineID string) *postgres.Client {
	if !cfg.Postgres.Enabled {
		api.SetPostgresState(false, true)
		return nil
	}
	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		log.Fatalf("failed to resolve PGPASSWORD: %v", err)
	}
	client, err := postgres.New(engineID, postgres.ConnString(password))
	if err != nil {
		log.Printf("postgres unavailable, events will not persist: %v", err)
		api.SetPostgresState(false, false)
		return nil
	}
	events.SetPostgresClient(client)
	api.SetPostgresState(true, false)
	return client
}

func newBackend(cfg *config.EngineConfig) audio.Backend {
	if cfg.AudioBackend() == config.BackendNull {
		return audio.NewNullBackend()
	}
	return ebitenaudio.NewBackend(cfg.SampleRate())
}

func main() {
	configPath := flag.String("config", "engine.yaml", "path to engine.yaml")
	restore := flag.Bool("restore", true, "resume the latest session from the event log")
	flag.Parse()

	events.SetOutput(os.Stdout)
	cfg := loadConfig(*configPath)
	engineID := cfg.EngineID()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg := connectPostgres(cfg, engineID)
	if pg != nil {
		defer pg.Close()
	}

	fetcher := media.NewSourceFetcher(cfg.Media.BaseDir, cfg.FetchTimeout())
	story, err := orchestrator.LoadStory(ctx, cfg.StoryPath(), fetcher, cfg.StartName())
	if err != nil {
		events.Emit("error", "story.failed", err.Error(), map[string]interface{}{"source": cfg.StoryPath()})
		log.Fatalf("failed to load story: %v", err)
	}
	events.Emit("info", "story.loaded", "", map[string]interface{}{
		"source": cfg.StoryPath(),
		"scenes": len(story.Scenes),
	})

	cache := media.NewCache(fetcher, ebitenaudio.Decoder{SampleRate: cfg.SampleRate()}, cfg.PreloadConcurrency())
	session := audio.NewSession(newBackend(cfg), cache)
	defer session.Close()

	rt := orchestrator.NewRuntime(story, cache, session)
	rt.SetEntry(cfg.EntryID(), cfg.StartName())
	rt.SetSessionID(uuid.NewString())

	if *restore {
		state, n, err := orchestrator.RestoreFromEvents(pg, "", orchestrator.DefaultRestoreLimit)
		if err != nil {
			log.Printf("restore failed, starting fresh: %v", err)
		} else if state != nil {
			if err := rt.ApplyRestoredState(state); err != nil {
				log.Printf("restore failed, starting fresh: %v", err)
			} else {
				orchestrator.EmitStartupRestore(n, rt.SessionID())
			}
		}
	}
	sessionID := rt.SessionID()

	downloads := export.NewMemorySink()
	sink := export.Tee{downloads, export.DirSink{Dir: cfg.ExportDir()}}
	rt.SetExporter(orchestrator.NewExporter(cache, comic.NewGenerator(cache, cfg.ComicPanels()), sink, cfg.SampleRate()))

	hub := api.NewHub(rt.Post)
	renderers := orchestrator.Renderers{hub}

	if cfg.MQTT.Enabled {
		var bridge *mqtt.Bridge
		client, err := mqtt.NewClient(mqtt.ClientOptions{
			ClientID: engineID + "-" + sessionID[:8],
			OnConnect: func() {
				api.SetMQTTState(true, false)
				if err := bridge.Resubscribe(); err != nil {
					log.Printf("mqtt: resubscribe failed: %v", err)
				}
			},
			OnConnectionLost: func(err error) {
				api.SetMQTTState(false, false)
				log.Printf("mqtt: connection lost: %v", err)
			},
		})
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		bridge = mqtt.NewBridge(client, cfg.TopicPrefix(), sessionID, rt.Post)
		presence := mqtt.NewPresence(2.0, rt.SkinChanged)
		bridge.SetPresence(presence)
		presence.Start(5 * time.Second)
		defer presence.Stop()

		go bridge.Run(ctx)
		client.ConnectWithLog()
		defer client.Disconnect()
		renderers = append(renderers, bridge)
	} else {
		api.SetMQTTState(false, true)
	}
	rt.SetRenderer(renderers)
	rt.SkinChanged(cfg.Skin())

	if err := api.InitAuth(); err != nil {
		log.Fatalf("failed to resolve API credentials: %v", err)
	}
	if err := api.InitTLS(); err != nil {
		log.Printf("tls disabled: %v", err)
	}
	api.InitMetrics(engineID, hub)
	api.InitAlerts()
	api.StartAlertMonitor(10 * time.Second)
	api.SetEngine(rt)
	api.SetExportStore(downloads)
	api.Start(cfg.UIPort(), hub)

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "orchestrator starting", map[string]interface{}{
		"service":    "orchestrator",
		"version":    version.Version,
		"hostname":   hostname,
		"pid":        os.Getpid(),
		"engine_id":  engineID,
		"session_id": sessionID,
		"skin":       cfg.Skin(),
	})

	go rt.Preload(ctx)
	if err := rt.Resume(ctx); err != nil {
		log.Printf("initial render failed: %v", err)
	}
	api.SetOrchestratorReady(true)

	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("runtime stopped: %v", err)
	}

	api.SetOrchestratorReady(false)
	events.Emit("info", "system.shutdown", "orchestrator stopping", map[string]interface{}{
		"session_id": sessionID,
	})
	events.CloseAllSubscribers()
}
