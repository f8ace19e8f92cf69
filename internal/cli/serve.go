package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientStory/internal/api"
	"github.com/AaronLay10/SentientStory/internal/config"
	"github.com/AaronLay10/SentientStory/internal/engine"
	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/mqtt"
	"github.com/AaronLay10/SentientStory/internal/save"
	"github.com/AaronLay10/SentientStory/internal/storage/postgres"
	"github.com/AaronLay10/SentientStory/internal/story"
	"github.com/AaronLay10/SentientStory/internal/version"
)

const (
	statusInterval     = 5 * time.Second
	heartbeatTolerance = 2.0
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve [project.json]",
		Short: "Serve one play session over HTTP and MQTT",
		Long:  "Serves the story over HTTP (player page, JSON API, websocket event stream) and, when a broker is configured, bridges it to MQTT.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runServe,
	}
	cmd.Flags().IntP("port", "p", 0, "HTTP port (overrides api.port)")
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.API.Port = port
	}
	path := cfg.Story.Path
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return errors.New("no story: pass a project file or set story.path")
	}

	g, err := story.Load(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "storyplayer starting", map[string]interface{}{
		"service":  "storyplayer",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
		"story":    g.Title,
	})
	events.Emit("info", "story.loaded", "", map[string]interface{}{
		"title": g.Title,
		"nodes": g.Len(),
		"path":  path,
	})

	pg := startPostgres(cfg, g.Title)
	if pg != nil {
		defer pg.Close()
		defer events.SetPostgresClient(nil)
	}

	saves, closeSaves, err := openSaves(cfg, g.Title, pg)
	if err != nil {
		return err
	}
	defer closeSaves()

	e := engine.New(g, engineOptions(cfg)...)
	e.Observe(api.HaltAlerter())
	if cfg.Saves.AutoSave {
		e.Observe(saves.AutoSaver(ctx, g.Title))
		if _, err := saves.Restore(ctx, e, save.AutoSaveSlot); err == nil {
			log.Printf("resumed from auto-save")
		}
	}

	if err := api.InitAuth(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	api.InitMetrics()
	api.InitAlerts(cfg.API.AlertWebhook, g.Title)
	api.SetStoryLoaded(true)

	if cfg.MQTT.Broker != "" {
		stopMQTT, err := startMQTT(ctx, cfg, e)
		if err != nil {
			return err
		}
		defer stopMQTT()
	} else {
		api.SetMQTTStatus(false, true)
	}

	alertStop := make(chan struct{})
	api.StartAlertMonitor(10*time.Second, alertStop)
	defer close(alertStop)

	srv := api.NewServer(e, saves)
	if err := srv.UseTLS(cfg.API.TLSCert, cfg.API.TLSKey); err != nil {
		return err
	}
	err = srv.ListenAndServe(ctx, cfg.APIPort())

	events.Emit("info", "system.shutdown", "storyplayer stopping", map[string]interface{}{
		"session_id": e.SessionID(),
		"node_id":    e.Cursor().NodeID,
	})
	events.CloseAllSubscribers()
	return err
}

// startPostgres connects for event persistence when enabled. A failure
// leaves events in memory only.
func startPostgres(cfg *config.Config, title string) *postgres.Client {
	required := cfg.SavesBackend() == config.BackendPostgres
	if !cfg.Postgres.Enabled && !required {
		api.SetPostgresStatus(false, true)
		return nil
	}
	pg, err := connectPostgres(cfg, title)
	if err != nil {
		log.Printf("postgres unavailable: %v", err)
		api.SetPostgresStatus(false, !required)
		return nil
	}
	if cfg.Postgres.Enabled {
		events.SetPostgresClient(pg)
	}
	api.SetPostgresStatus(true, !required)
	return pg
}

// startMQTT connects the presentation bridge and front-end presence
// tracking. The returned func disconnects.
func startMQTT(ctx context.Context, cfg *config.Config, e *engine.Engine) (func(), error) {
	client := mqtt.NewClient(mqtt.BrokerURL(cfg.MQTT.Broker), cfg.MQTTClientID())
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}

	bridge := mqtt.NewBridge(client, e, cfg.MQTTPrefix())
	if err := bridge.Start(); err != nil {
		client.Disconnect()
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	go bridge.Run(ctx)

	presence := mqtt.NewPresence(heartbeatTolerance)
	if err := client.Subscribe(bridge.Topic("heartbeat"), presence.Handler()); err != nil {
		log.Printf("mqtt: presence disabled: %v", err)
	} else {
		presence.Start(statusInterval)
	}

	api.SetMQTTStatus(true, false)
	log.Printf("MQTT bridge on %s (prefix %s)", client.Broker(), cfg.MQTTPrefix())

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				api.SetMQTTStatus(client.IsConnected(), false)
			}
		}
	}()

	return func() {
		close(done)
		presence.Stop()
		client.Disconnect()
	}, nil
}
