package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/09OndaProject/onda-chat/internal/api"
	"github.com/09OndaProject/onda-chat/internal/chat"
	"github.com/09OndaProject/onda-chat/internal/config"
	"github.com/09OndaProject/onda-chat/internal/database"
	"github.com/09OndaProject/onda-chat/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr           string
	dsn            string
	signingKey     string
	sweepInterval  time.Duration
	retentionGrace time.Duration
	storeWorkers   int
	allowedOrigins stringSliceFlag
)

func main() {
	// optional .env file; flags and real env vars win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("load .env:", err)
	}

	flag.StringVar(&addr, "addr", envOr("ONDA_CHAT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("ONDA_CHAT_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("ONDA_CHAT_SIGNING_KEY"), "base64 encoded signing key")
	flag.DurationVar(&sweepInterval, "sweep-interval", 0, "interval between message retention sweeps")
	flag.DurationVar(&retentionGrace, "retention-grace", 0, "how long messages of deleted accounts are kept")
	flag.IntVar(&storeWorkers, "store-workers", 0, "number of message persistence workers")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[onda-chat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, sweepInterval, retentionGrace)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	registry := chat.NewRegistry(logger, statsUpdater)
	resolver := chat.NewTokenResolver(cfg.SigningKey, dbConn, logger)
	store := chat.NewMessageStore(dbConn, logger, statsUpdater, storeWorkers)
	dispatcher := chat.NewDispatcher(registry, logger)

	chatServer := chat.NewChatServer(logger, dbConn, registry, resolver, store, dispatcher, statsUpdater, cfg.AllowedOrigins)

	sweeper := chat.NewSweeper(dbConn, logger, cfg.SweepInterval, cfg.RetentionGrace)

	srv, err := api.NewChatApp(mux, logger, chatServer, resolver, dbConn, cfg)
	if err != nil {
		logger.Fatal("new chat app:", err)
	}

	statsUpdater.Run()
	defer statsUpdater.Stop()

	store.Run()
	sweeper.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	sweeper.Stop()
	store.Stop()

	logger.Println("shutdown complete")
}
