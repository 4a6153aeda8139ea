package main

import (
	"context"
	"errors"
	"io/fs"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"storefront/internal/logging"
	"storefront/internal/storage"
	"storefront/internal/util"
)

var cli struct {
	PGConnString string `help:"Postgres connection string." required:"" env:"PG_CONNSTRING"`
	LogLevel     string `help:"Log level." default:"info" env:"LOG_LEVEL"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	kctx := kong.Parse(&cli, kong.Name("db_migrations"), kong.Description("Creates the persisted store table."))

	logger, err := logging.New(cli.LogLevel, true)
	kctx.FatalIfErrorf(err)
	defer logger.Sync()

	ctx := context.Background()

	logger.Info("migrating database")
	pool, err := storage.DBPool(ctx, cli.PGConnString)
	util.MustSucceed(logger, err)
	defer pool.Close()

	util.MustSucceed(logger, storage.NewPG(pool, logger).ApplyMigration(ctx))
	logger.Info("migration executed successfully", zap.String("table", "storefront_kv"))
}
