// commands.go — команды CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/epfl-sti/epflws/internal/api/handlers"
	"github.com/epfl-sti/epflws/internal/api/middleware"
	"github.com/epfl-sti/epflws/internal/config"
	"github.com/epfl-sti/epflws/internal/database"
	"github.com/epfl-sti/epflws/internal/memento"
	"github.com/epfl-sti/epflws/internal/server"
	"github.com/epfl-sti/epflws/internal/service"
)

// ServeCmd — HTTP API с фоновыми задачами.
type ServeCmd struct{}

func (c *ServeCmd) Run(ctx *cliCtx) error {
	cfg, logger := ctx.cfg, ctx.logger
	logger.Info("epflws запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreBackend),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var jwtAuth *middleware.JWTAuth
	if cfg.AuthEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWTJWKSURL, cfg.JWTIssuer,
			cfg.RoleEditorGroups, cfg.RoleViewerGroups,
			cfg.JWKSRefreshInterval, cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			return fmt.Errorf("JWT middleware: %w", err)
		}
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("WS_JWT_JWKS_URL не задан, изменяющие запросы не требуют аутентификации")
	}

	// Периодическая синхронизация лабораторий
	a.labSync.Start(ctx)
	defer a.labSync.Stop()

	// topologymetrics — мониторинг зависимостей
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "epflws",
		Group:         cfg.DephealthGroup,
		PostgresDB:    a.pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		MementoURL:    cfg.MementoURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		defer dephealthSvc.Stop()
	}

	srv := server.New(cfg, logger, server.Handlers{
		Health:  handlers.NewHealthHandler(a.storeChecker, a.directory),
		Labs:    handlers.NewLabHandler(a.labs, a.labSync, logger),
		Persons: handlers.NewPersonHandler(a.persons, logger),
		Memento: handlers.NewMementoHandler(a.memento, logger),
	}, jwtAuth)

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("epflws остановлен")
	return nil
}

// MigrateCmd — применение миграций.
type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cliCtx) error {
	if ctx.cfg.StoreBackend == config.StoreBackendSQLite {
		return database.MigrateSQLite(ctx.cfg.SQLitePath, ctx.logger)
	}
	return database.Migrate(ctx.cfg, ctx.logger)
}

// LabCmd — группа команд лабораторий.
type LabCmd struct {
	Sync    LabSyncCmd    `cmd:"" help:"Создать (при необходимости) и синхронизировать лабораторию"`
	Show    LabShowCmd    `cmd:"" help:"Показать лабораторию по аббревиатуре"`
	List    LabListCmd    `cmd:"" help:"Список лабораторий по суффиксу DN"`
	SyncAll LabSyncAllCmd `cmd:"" name:"sync-all" help:"Синхронизировать все лаборатории по суффиксу DN"`
}

// LabSyncCmd — epflws lab sync ABBREV.
type LabSyncCmd struct {
	Abbrev string `arg:"" help:"Аббревиатура подразделения (ou)"`
}

func (c *LabSyncCmd) Run(ctx *cliCtx) error {
	a, err := newApp(ctx, ctx.cfg, ctx.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	lab, err := a.labs.GetOrCreateByAbbrev(ctx, c.Abbrev)
	if err != nil {
		return err
	}
	if err := a.labs.Sync(ctx, lab); err != nil {
		return err
	}
	return printJSON(os.Stdout, labView(lab))
}

// LabShowCmd — epflws lab show ABBREV.
type LabShowCmd struct {
	Abbrev string `arg:"" help:"Аббревиатура подразделения (ou)"`
}

func (c *LabShowCmd) Run(ctx *cliCtx) error {
	a, err := newApp(ctx, ctx.cfg, ctx.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	lab, err := a.labs.GetByAbbrev(ctx, c.Abbrev)
	if err != nil {
		return err
	}
	if lab == nil {
		return fmt.Errorf("%w: %s не найдена или аббревиатура неоднозначна", service.ErrLabNotFound, c.Abbrev)
	}
	return printJSON(os.Stdout, labView(lab))
}

// LabListCmd — epflws lab list.
type LabListCmd struct {
	DNSuffix string `name:"dn-suffix" help:"Суффикс DN (по умолчанию WS_LAB_DN_SUFFIX)"`
	RealOnly bool   `name:"real-only" help:"Только активные лаборатории без флага not_a_lab"`
}

func (c *LabListCmd) Run(ctx *cliCtx) error {
	a, err := newApp(ctx, ctx.cfg, ctx.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	suffix := c.DNSuffix
	if suffix == "" {
		suffix = ctx.cfg.LabDNSuffix
	}
	labs, err := a.labs.FindAllByDNSuffix(ctx, suffix)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ABBREV\tUNIQUE_ID\tMEMBERS\tREAL\tNAME")
	for _, lab := range labs {
		if c.RealOnly && !lab.IsReal() {
			continue
		}
		members := "-"
		if n := lab.MemberCount(); n != nil {
			members = fmt.Sprint(*n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", lab.Abbrev, lab.UniqueID, members, lab.IsReal(), lab.Name)
	}
	return tw.Flush()
}

// LabSyncAllCmd — epflws lab sync-all.
type LabSyncAllCmd struct {
	DNSuffix string `name:"dn-suffix" help:"Суффикс DN (по умолчанию WS_LAB_DN_SUFFIX)"`
}

func (c *LabSyncAllCmd) Run(ctx *cliCtx) error {
	a, err := newApp(ctx, ctx.cfg, ctx.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.labSync.SyncAll(ctx, c.DNSuffix)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, result)
}

// MementoCmd — группа команд ленты событий.
type MementoCmd struct {
	Render MementoRenderCmd `cmd:"" help:"Вывести HTML ленты событий"`
}

// MementoRenderCmd — epflws memento render.
type MementoRenderCmd struct {
	Tmpl      string `help:"Шаблон: full, short, widget" default:"full" enum:"full,short,widget"`
	Channel   string `help:"Канал Memento" default:"sti"`
	Lang      string `help:"Язык" default:"en"`
	Category  string `help:"Категория"`
	Search    string `help:"Поиск"`
	Title     string `help:"Фильтр по заголовку"`
	Subtitle  string `help:"Фильтр по подзаголовку"`
	Text      string `help:"Фильтр по тексту"`
	Publics   string `help:"Аудитория"`
	Themes    string `help:"Темы"`
	Limit     string `help:"Количество событий"`
	Faculties string `help:"Факультеты"`
	Offset    string `help:"Смещение"`
}

func (c *MementoRenderCmd) Run(ctx *cliCtx) error {
	client := memento.New(ctx.cfg.MementoURL, ctx.cfg.MementoAllowedHost, ctx.cfg.MementoTimeout, nil, ctx.logger)
	svc := service.NewMementoService(client, 0, 0, ctx.logger)

	html, err := svc.Render(ctx, memento.Attributes{
		Template:  c.Tmpl,
		Channel:   c.Channel,
		Lang:      c.Lang,
		Category:  c.Category,
		Search:    c.Search,
		Title:     c.Title,
		Subtitle:  c.Subtitle,
		Text:      c.Text,
		Publics:   c.Publics,
		Themes:    c.Themes,
		Limit:     c.Limit,
		Faculties: c.Faculties,
		Offset:    c.Offset,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(os.Stdout, html)
	return err
}

// labView — представление лаборатории для вывода в CLI.
func labView(lab *service.Lab) map[string]any {
	return map[string]any{
		"id":             lab.ID,
		"unique_id":      lab.UniqueID,
		"name":           lab.Name,
		"abbrev":         lab.Abbrev,
		"description_fr": lab.DescriptionFR,
		"description_en": lab.DescriptionEN,
		"website_url":    lab.WebsiteURL,
		"dn":             lab.DN,
		"manager_sciper": lab.ManagerSciper,
		"member_count":   lab.MemberCount(),
		"not_a_lab":      lab.NotALab(),
		"is_real":        lab.IsReal(),
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
