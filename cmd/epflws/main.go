// Точка входа epflws — сервис синхронизации лабораторий EPFL с каталогом
// LDAP и ленты событий Memento.
//
// Команды:
//
//	epflws serve              — HTTP API, фоновая синхронизация, topologymetrics
//	epflws migrate            — применить миграции хранилища
//	epflws lab sync ABBREV    — создать (при необходимости) и синхронизировать лабораторию
//	epflws lab show ABBREV    — показать лабораторию
//	epflws lab list           — список лабораторий по суффиксу DN
//	epflws lab sync-all       — синхронизировать все лаборатории
//	epflws memento render     — вывести HTML ленты событий
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/epfl-sti/epflws/internal/config"
)

// cliCtx — общий контекст команд.
type cliCtx struct {
	context.Context
	cfg    *config.Config
	logger *slog.Logger
}

type cli struct {
	EnvFile string           `name:"env-file" help:"Файл с переменными окружения" env:"WS_ENV_FILE" default:".env"`
	Version kong.VersionFlag `help:"Показать версию"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Запустить HTTP-сервер"`
	Migrate MigrateCmd `cmd:"" help:"Применить миграции хранилища"`
	Lab     LabCmd     `cmd:"" help:"Операции с лабораториями"`
	Memento MementoCmd `cmd:"" help:"Лента событий Memento"`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("epflws"),
		kong.Description("Синхронизация лабораторий EPFL с каталогом LDAP и лента событий Memento"),
		kong.UsageOnError(),
		kong.Vars{"version": config.Version},
	)

	// config.Load читает путь к .env из окружения
	if err := os.Setenv("WS_ENV_FILE", c.EnvFile); err != nil {
		kctx.FatalIfErrorf(err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := config.SetupLogger(cfg)

	err = kctx.Run(&cliCtx{Context: context.Background(), cfg: cfg, logger: logger})
	kctx.FatalIfErrorf(err)
}
