package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/susu3304/chipledger/internal/api"
	"github.com/susu3304/chipledger/internal/bot"
	"github.com/susu3304/chipledger/internal/config"
	"github.com/susu3304/chipledger/internal/db"
	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/memstore"
	"github.com/susu3304/chipledger/internal/notify"
	"github.com/susu3304/chipledger/internal/player"
	"github.com/susu3304/chipledger/internal/room"
	"github.com/susu3304/chipledger/internal/sqlite"
)

type store interface {
	ledger.SessionStore
	room.Store
	player.Store
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	players := player.NewService(st)
	rooms := room.NewService(st, ledger.New(st), players)
	notifier := notify.NewDispatcher(players, notify.LogSender{})

	// Initialize Discord bot
	var discordBot *bot.Bot
	if cfg.DiscordToken != "" {
		discordBot, err = bot.New(cfg.DiscordToken, rooms)
		if err != nil {
			log.Fatalf("Failed to create discord bot: %v", err)
		}
		if cfg.NotifyChannelID != "" {
			notifier.WithChannel(notify.NewChannelPoster(discordBot.Session(), cfg.NotifyChannelID))
		}
		if err := discordBot.Start(); err != nil {
			log.Fatalf("Failed to start discord bot: %v", err)
		}
		defer discordBot.Stop()
	} else {
		log.Println("DISCORD_TOKEN not set, running without the Discord bot")
	}

	// Initialize API server
	srv := api.New(cfg, rooms, players, notifier).Server()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped with error: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.RunMigrations(ctx); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return database, database.Close, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Printf("Failed to close sqlite store: %v", err)
			}
		}, nil
	case config.DriverMemory:
		log.Println("Using in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
