// Package cli implements the storyplayer commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientStory/internal/api"
	"github.com/AaronLay10/SentientStory/internal/config"
	"github.com/AaronLay10/SentientStory/internal/engine"
	"github.com/AaronLay10/SentientStory/internal/save"
	"github.com/AaronLay10/SentientStory/internal/storage/files"
	"github.com/AaronLay10/SentientStory/internal/storage/postgres"
	"github.com/AaronLay10/SentientStory/internal/storage/sqlite"
	"github.com/AaronLay10/SentientStory/internal/version"
)

const defaultConfigFile = "storyplayer.yaml"

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "storyplayer",
	Short:         "Play node-graph visual novels",
	Long:          "Loads a visual novel project, walks its node graph under player input and keeps save slots.",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $STORY_CONFIG, or ./storyplayer.yaml if present)")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("STORY_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	return config.Load(path)
}

func engineOptions(cfg *config.Config) []engine.Option {
	var opts []engine.Option
	if cfg.Engine.StepLimit > 0 {
		opts = append(opts, engine.WithStepLimit(cfg.Engine.StepLimit))
	}
	return opts
}

func postgresConfig(cfg *config.Config) (postgres.Config, error) {
	password, err := cfg.PostgresPassword()
	if err != nil {
		return postgres.Config{}, err
	}
	return postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Database: cfg.Postgres.Database,
		Password: password,
		SSLMode:  cfg.Postgres.SSLMode,
	}, nil
}

func connectPostgres(cfg *config.Config, title string) (*postgres.Client, error) {
	pgCfg, err := postgresConfig(cfg)
	if err != nil {
		return nil, err
	}
	return postgres.New(pgCfg, title)
}

// openSaves opens the configured save store for the story titled title.
// pg is reused for the postgres backend when already connected. The
// returned close func releases only what openSaves opened.
func openSaves(cfg *config.Config, title string, pg *postgres.Client) (*save.Manager, func(), error) {
	var (
		store save.Store
		err   error
		owned = true
	)
	switch cfg.SavesBackend() {
	case config.BackendFiles:
		store, err = files.Open(cfg.SavesDir())
	case config.BackendPostgres:
		if pg != nil {
			store, owned = pg, false
		} else {
			store, err = connectPostgres(cfg, title)
		}
	default:
		store, err = sqlite.Open(cfg.SavesDB(), title)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s save store: %w", cfg.SavesBackend(), err)
	}

	m := save.NewManager(store,
		save.WithMaxSlots(cfg.Saves.MaxSlots),
		save.WithPutHook(recordSave),
	)
	closeFn := func() {
		if owned {
			store.Close()
		}
	}
	return m, closeFn, nil
}

func recordSave(slot int, err error) {
	switch {
	case err == nil:
		api.RecordSave(time.Now())
	case slot == save.AutoSaveSlot:
		api.RecordAutoSaveFailure()
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
