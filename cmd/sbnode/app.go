package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/creamcroissant/sbnode/internal/certs"
	"github.com/creamcroissant/sbnode/internal/config"
	"github.com/creamcroissant/sbnode/internal/credential"
	"github.com/creamcroissant/sbnode/internal/firewall"
	"github.com/creamcroissant/sbnode/internal/hostaddr"
	"github.com/creamcroissant/sbnode/internal/initsys"
	"github.com/creamcroissant/sbnode/internal/metrics"
	"github.com/creamcroissant/sbnode/internal/probe"
	"github.com/creamcroissant/sbnode/internal/render"
	"github.com/creamcroissant/sbnode/internal/repository"
	"github.com/creamcroissant/sbnode/internal/service"
	"github.com/creamcroissant/sbnode/internal/support/execx"
	"github.com/creamcroissant/sbnode/internal/support/logging"
)

// app holds everything a command needs, wired from the loaded config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	closer   io.Closer
	svc      serviceControl
	firewall firewall.Firewall
	manager  *service.Manager
}

// serviceControl is the slice of initsys.Service the commands use.
type serviceControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Status(ctx context.Context) (bool, error)
	Logs(ctx context.Context, lines int, follow bool, w io.Writer) error
}

// unavailableService stands in when no init system could be selected, so
// that user operations still run and report the restart as a warning.
type unavailableService struct{ err error }

func (u unavailableService) Start(context.Context) error          { return u.err }
func (u unavailableService) Stop(context.Context) error           { return u.err }
func (u unavailableService) Restart(context.Context) error        { return u.err }
func (u unavailableService) Status(context.Context) (bool, error) { return false, u.err }
func (u unavailableService) Logs(context.Context, int, bool, io.Writer) error {
	return u.err
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{File: configFile})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closer := logging.New(logging.Options{
		Level:      cfg.Log.SlogLevel(),
		Format:     cfg.Log.Format,
		AddSource:  cfg.Log.AddSource,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	slog.SetDefault(logger)

	runner := execx.Default
	a := &app{cfg: cfg, logger: logger, closer: closer}

	initType := ""
	if sys, err := initsys.New(cfg.Service.InitConfig(), runner, logger); err != nil {
		logger.Warn("service control unavailable", "error", err)
		a.svc = unavailableService{err: fmt.Errorf("service control unavailable: %w", err)}
	} else {
		a.svc = initsys.Service{Sys: sys, Name: cfg.Service.Name}
		initType = sys.Type()
	}

	a.firewall, err = firewall.New(firewall.Options{
		Backend:  cfg.Firewall.Backend,
		NFTTable: cfg.Firewall.NFTTable,
		SSHPort:  cfg.Firewall.SSHPort,
		Runner:   runner,
		Logger:   logger,
	})
	if err != nil {
		closer.Close()
		return nil, err
	}

	keys, err := credential.NewKeyPairSource(cfg.Keygen.Mode, cfg.Keygen.SingBoxPath, runner)
	if err != nil {
		closer.Close()
		return nil, err
	}

	var renderer render.Renderer
	if !noQR {
		renderer = render.NewQR(cfg.Paths.QRCodeDir)
	}

	var confirmer service.Confirmer = service.AutoConfirm
	if !assumeYes {
		confirmer = promptConfirmer{}
	}

	a.manager, err = service.NewManager(service.Options{
		Store:     repository.New(cfg.Paths.Config, cfg.Paths.Keys, cfg.Paths.NodeNames),
		Generator: credential.NewGenerator(keys),
		Certs:     certs.SelfSigned{Dir: cfg.Paths.CertDir},
		Firewall:  a.firewall,
		Service:   a.svc,
		Renderer:  renderer,
		Host:      hostaddr.New(cfg.Server.Host, cfg.Server.IPLookupURL, cfg.Server.IPCacheTTL),
		Prober:    probe.New(cfg.Keygen.SingBoxPath, runner, a.svc, initType),
		Confirmer: confirmer,
		Metrics:   metrics.New(metrics.DefaultConfig()),
		Logger:    logger,
		Settings: service.Settings{
			VLESSPort:           cfg.Defaults.VLESSPort,
			Hysteria2Port:       cfg.Defaults.Hysteria2Port,
			ServerName:          cfg.Defaults.ServerName,
			Fingerprint:         cfg.Defaults.Fingerprint,
			Flow:                cfg.Defaults.Flow,
			SecretLength:        cfg.Defaults.SecretLength,
			UpMbps:              cfg.Defaults.UpMbps,
			DownMbps:            cfg.Defaults.DownMbps,
			ObfsPassword:        cfg.Defaults.ObfsPassword,
			Insecure:            cfg.Defaults.Insecure,
			CollaboratorTimeout: cfg.Timeouts.Collaborator,
			CloseEmptyListeners: cfg.Firewall.CloseEmptyListeners,
			RenderQR:            !noQR,
			LockPath:            cfg.Paths.Lock,
			MetricsTextfile:     cfg.Metrics.Textfile,
		},
	})
	if err != nil {
		closer.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.closer != nil {
		a.closer.Close()
	}
}

// withApp builds the app, runs fn with a context cancelled on SIGINT/SIGTERM,
// and tears everything down afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}
