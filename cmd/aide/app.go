package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nugget/aide/internal/agent"
	"github.com/nugget/aide/internal/calendar"
	"github.com/nugget/aide/internal/config"
	"github.com/nugget/aide/internal/connwatch"
	"github.com/nugget/aide/internal/contacts"
	"github.com/nugget/aide/internal/docs"
	"github.com/nugget/aide/internal/email"
	"github.com/nugget/aide/internal/events"
	"github.com/nugget/aide/internal/fetch"
	"github.com/nugget/aide/internal/httpkit"
	"github.com/nugget/aide/internal/llm"
	"github.com/nugget/aide/internal/mcp"
	"github.com/nugget/aide/internal/memory"
	"github.com/nugget/aide/internal/search"
	"github.com/nugget/aide/internal/tools"
	"github.com/nugget/aide/internal/usage"
)

// app holds everything a turn needs. serve and ask both build one;
// serve adds the ingress surfaces on top.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	model    llm.Client
	registry *tools.Registry
	store    memory.ConversationStore
	usage    *usage.Store
	bus      *events.Bus
	orch     *agent.Orchestrator

	// probes are backend health checks registered with the monitor
	// when serving.
	probes map[string]connwatch.Probe

	closers []func() error
}

// newApp opens the stores, connects the capability backends and builds
// the orchestrator. Backends that fail to connect are logged and left
// out; the model and stores are required.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: tools.NewRegistry(),
		bus:      events.New(),
		probes:   make(map[string]connwatch.Probe),
	}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	model, err := llm.New(ctx, llm.ProviderConfig{
		Provider: cfg.Model.Provider,
		APIKey:   cfg.Model.APIKey,
		BaseURL:  cfg.Model.BaseURL,
		Options: llm.Options{
			Model:       cfg.Model.Name,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
			TopP:        cfg.Model.TopP,
		},
		Retries:      cfg.Model.Retries,
		RetryBackoff: cfg.Model.RetryBackoff,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	a.model = model
	if p, ok := llm.PingerOf(model); ok {
		a.probes["model"] = p.Ping
	}

	if err := a.openStores(); err != nil {
		return nil, err
	}
	if err := a.registerGroups(ctx); err != nil {
		return nil, err
	}

	loc := cfg.Location()
	a.orch = agent.New(agent.Config{
		Registry:  a.registry,
		Engine:    tools.NewEngine(logger, cfg.Agent.CallTimeout),
		Model:     model,
		ModelName: cfg.Model.Name,
		Provider:  cfg.Model.Provider,
		Store:     a.store,
		Context: agent.NewCompositeContextProvider(
			agent.NewHistoryProvider(a.store, cfg.Agent.HistoryLimit, loc),
			agent.NewChannelProvider(),
		),
		Usage:         a.usage,
		Bus:           a.bus,
		MaxIterations: cfg.Agent.MaxIterations,
		TurnTimeout:   cfg.Agent.TurnTimeout,
		Location:      loc,
		AssistantName: "aide",
		OwnerName:     cfg.Owner.Name,
		OwnerEmail:    cfg.Owner.Email,
		Logger:        logger,
	})

	logger.Info("capabilities registered", "categories", a.registry.Categories())
	ok = true
	return a, nil
}

func (a *app) openStores() error {
	if a.cfg.Store.Path != "" {
		s, err := memory.OpenSQLite(a.cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open conversation store: %w", err)
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
		a.logger.Info("conversation store opened", "path", a.cfg.Store.Path)
	} else {
		a.store = memory.NewStore()
		a.logger.Warn("conversation history is kept in memory only; set store.path to persist it")
	}

	u, err := usage.NewStore(filepath.Join(a.cfg.DataDir, "usage.db"))
	if err != nil {
		return fmt.Errorf("open usage store: %w", err)
	}
	a.usage = u
	a.closers = append(a.closers, u.Close)
	return nil
}

// registerGroups registers one capability group per configured backend.
func (a *app) registerGroups(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	loc := cfg.Location()

	var directory *contacts.Store
	if cfg.Contacts.Enabled {
		s, err := contacts.Open(cfg.Contacts.Path, logger)
		if err != nil {
			return fmt.Errorf("open contacts: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		directory = s
		if cfg.Contacts.ImportVCF != "" {
			if err := importVCF(ctx, s, cfg.Contacts.ImportVCF, logger); err != nil {
				logger.Warn("vcard import failed", "path", cfg.Contacts.ImportVCF, "error", err)
			}
		}
		a.registry.MustRegister(contacts.NewTools(s).Group())
	}

	if cfg.Mail.Configured() {
		mgr := email.NewManager(cfg.Mail, logger)
		a.closers = append(a.closers, func() error { mgr.Close(); return nil })
		box, err := mgr.Account("")
		if err != nil {
			return err
		}
		acct, _ := cfg.Mail.Primary()
		opts := email.Options{
			From:     acct.DefaultFrom,
			BccOwner: cfg.Mail.BccOwner,
			Logger:   logger,
		}
		if opts.From == "" {
			opts.From = acct.IMAP.Username
		}
		if acct.SMTPConfigured() {
			opts.Sender = email.NewSMTPSender(acct.SMTP)
		}
		if directory != nil {
			opts.Contacts = directory
		}
		a.registry.MustRegister(email.NewTools(box, opts).Group())
		a.probes["imap"] = box.Ping
	}

	if cfg.Calendar.Configured() {
		cal, err := calendar.NewCalDAV(cfg.Calendar, httpkit.NewClient(httpkit.WithLogger(logger)), loc, logger)
		if err != nil {
			return fmt.Errorf("calendar: %w", err)
		}
		a.registry.MustRegister(calendar.NewTools(cal, loc, logger).Group())
		a.probes["caldav"] = cal.Ping
	}

	if cfg.Docs.Configured() {
		store, err := docs.NewDAVStore(cfg.Docs, httpkit.NewClient(httpkit.WithLogger(logger)))
		if err != nil {
			return fmt.Errorf("docs: %w", err)
		}
		a.registry.MustRegister(docs.NewTools(store, logger).Group())
		a.probes["webdav"] = func(ctx context.Context) error {
			_, err := store.List(ctx)
			return err
		}
	}

	if cfg.Search.Configured() {
		hc := httpkit.NewClient(httpkit.WithLogger(logger))
		mgr := search.NewManager()
		if cfg.Search.SearXNG.URL != "" {
			mgr.Register(search.NewSearXNG(cfg.Search.SearXNG.URL, hc))
		}
		if cfg.Search.Brave.APIKey != "" {
			mgr.Register(search.NewBrave(cfg.Search.Brave.APIKey, hc))
		}
		var fetcher *fetch.Fetcher
		if cfg.Search.Fetch {
			fetcher = fetch.New(nil)
		}
		a.registry.MustRegister(search.NewTools(mgr, fetcher).Group())
	}

	for _, sc := range cfg.MCP.Servers {
		if err := a.connectMCP(ctx, sc); err != nil {
			logger.Warn("mcp server unavailable", "server", sc.Name, "error", err)
		}
	}
	return nil
}

func (a *app) connectMCP(ctx context.Context, sc config.MCPServerConfig) error {
	c, err := mcp.Connect(ctx, mcp.ServerConfig{
		Name:         sc.Name,
		Description:  sc.Description,
		Transport:    sc.Transport,
		Command:      sc.Command,
		Args:         sc.Args,
		Env:          sc.Env,
		URL:          sc.URL,
		Headers:      sc.Headers,
		IncludeTools: sc.IncludeTools,
	}, a.logger)
	if err != nil {
		return err
	}
	g, err := mcp.Group(ctx, c, a.logger)
	if err == nil {
		err = a.registry.Register(g)
	}
	if err != nil {
		c.Close()
		return err
	}
	a.closers = append(a.closers, c.Close)
	a.probes["mcp_"+mcp.Category(sc.Name)] = func(ctx context.Context) error {
		_, err := c.ListTools(ctx)
		return err
	}
	return nil
}

func importVCF(ctx context.Context, s *contacts.Store, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	added, skipped, err := s.ImportVCF(ctx, f)
	if err != nil {
		return err
	}
	logger.Info("vcard import complete", "path", path, "added", added, "skipped", skipped)
	return nil
}

// Close releases stores and backend connections in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
