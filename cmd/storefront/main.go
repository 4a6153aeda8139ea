package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"storefront/internal"
	"storefront/internal/address"
	"storefront/internal/config"
	"storefront/internal/logging"
	"storefront/internal/storage"
	"storefront/internal/util"
)

var cli config.Config

func init() {
	// Loaded before kong so that .env values reach the env tags.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("storefront"),
		kong.Description("Local API for the fruit storefront commerce core."),
	)

	logger, err := logging.New(cli.LogLevel, cli.LogDev)
	kctx.FatalIfErrorf(err)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	repo, closeRepo, err := openStorage(ctx, logger)
	util.MustSucceed(logger, err)
	defer closeRepo()

	geocoder := address.NewGoogleGeocoder(cli.GeocodeURL, cli.GeocodeKey, cli.GeocodeLanguage,
		&http.Client{Timeout: cli.HTTPTimeout}, logger.Named("geocode"))

	components, err := internal.NewComponents(ctx, &cli, repo, geocoder, logger)
	util.MustSucceed(logger, err)
	defer components.Basket.Close()

	app := internal.NewApi(components, logger.Named("api"))

	go func() {
		<-ctx.Done()
		logger.Info("received shutdown signal, exiting")
		if err := app.Shutdown(); err != nil {
			logger.Error("failed to shut down", zap.Error(err))
		}
	}()

	logger.Info("storefront started", zap.String("addr", cli.ListenAddr), zap.String("storage", cli.Storage))
	if err := app.Listen(cli.ListenAddr); err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}
}

func openStorage(ctx context.Context, logger *zap.Logger) (storage.Repository, func(), error) {
	log := logger.Named("storage")

	switch cli.Storage {
	case "redis":
		client, err := storage.NewRedisClient(storage.RedisConfig{
			Addr:     cli.RedisAddr,
			Password: cli.RedisPassword,
			DB:       cli.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		repo, err := storage.NewRedis(ctx, client, log)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return repo, func() {
			repo.Close()
			client.Close()
		}, nil

	case "postgres":
		pool, err := storage.DBPool(ctx, cli.PGConnString)
		if err != nil {
			return nil, nil, err
		}
		repo := storage.NewPG(pool, log)
		if err := repo.ApplyMigration(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		go func() {
			if err := repo.Listen(ctx); err != nil {
				log.Error("change listener stopped", zap.Error(err))
			}
		}()
		return repo, pool.Close, nil
	}

	return storage.NewMemory(), func() {}, nil
}
