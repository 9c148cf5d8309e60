// Package service is the node lifecycle orchestrator: it owns every write to
// the sing-box config and its side files and decides when the firewall,
// the service manager and the QR renderer get involved.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/creamcroissant/sbnode/internal/certs"
	"github.com/creamcroissant/sbnode/internal/credential"
	"github.com/creamcroissant/sbnode/internal/document"
	"github.com/creamcroissant/sbnode/internal/filelock"
	"github.com/creamcroissant/sbnode/internal/firewall"
	"github.com/creamcroissant/sbnode/internal/hostaddr"
	"github.com/creamcroissant/sbnode/internal/metrics"
	"github.com/creamcroissant/sbnode/internal/probe"
	"github.com/creamcroissant/sbnode/internal/render"
	"github.com/creamcroissant/sbnode/internal/repository"
	"github.com/creamcroissant/sbnode/internal/sidestate"
)

// Store is the persistence the manager needs; *repository.Repository implements it.
type Store interface {
	Exists() (bool, error)
	LoadDocument() (*document.Document, error)
	LoadKeys() (sidestate.Keys, bool, error)
	LoadNodeNames() (sidestate.NodeNames, error)
	Commit(repository.Changes) (repository.CommitResult, error)
}

// ServiceController restarts the proxy after a config change.
type ServiceController interface {
	Restart(ctx context.Context) error
}

// StateProber takes a fresh InstalledState snapshot.
type StateProber interface {
	QueryInstalledState(ctx context.Context) (probe.InstalledState, error)
}

// Confirmer asks the operator before destructive steps.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) (bool, error)

func (f ConfirmFunc) Confirm(prompt string) (bool, error) { return f(prompt) }

// AutoConfirm answers yes to everything (--yes).
var AutoConfirm = ConfirmFunc(func(string) (bool, error) { return true, nil })

// Settings are the tunables taken from the tool config.
type Settings struct {
	VLESSPort     int
	Hysteria2Port int
	ServerName    string
	Fingerprint   string
	Flow          string
	SecretLength  int
	UpMbps        int
	DownMbps      int
	ObfsPassword  string
	Insecure      bool

	CollaboratorTimeout time.Duration
	CloseEmptyListeners bool
	RenderQR            bool
	LockPath            string
	MetricsTextfile     string
}

// Options wires the manager's collaborators. Store, Generator and Host are
// required; the rest fall back to no-ops.
type Options struct {
	Store     Store
	Generator *credential.Generator
	Certs     certs.Issuer
	Firewall  firewall.PortController
	Service   ServiceController
	Renderer  render.Renderer
	Host      hostaddr.Resolver
	Prober    StateProber
	Confirmer Confirmer
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Settings  Settings
}

// Manager runs lifecycle operations one at a time.
type Manager struct {
	store     Store
	gen       *credential.Generator
	certs     certs.Issuer
	firewall  firewall.PortController
	service   ServiceController
	renderer  render.Renderer
	host      hostaddr.Resolver
	prober    StateProber
	confirmer Confirmer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	settings  Settings
}

// NewManager validates opts and fills defaults.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil || opts.Generator == nil || opts.Host == nil {
		return nil, errors.New("service: store, generator and host resolver are required")
	}
	m := &Manager{
		store:     opts.Store,
		gen:       opts.Generator,
		certs:     opts.Certs,
		firewall:  opts.Firewall,
		service:   opts.Service,
		renderer:  opts.Renderer,
		host:      opts.Host,
		prober:    opts.Prober,
		confirmer: opts.Confirmer,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		settings:  opts.Settings,
	}
	if m.firewall == nil {
		m.firewall = firewall.Noop{}
	}
	if m.confirmer == nil {
		m.confirmer = AutoConfirm
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	s := &m.settings
	if s.Fingerprint == "" {
		s.Fingerprint = "chrome"
	}
	if s.Flow == "" {
		s.Flow = "xtls-rprx-vision"
	}
	if s.SecretLength <= 0 {
		s.SecretLength = 16
	}
	if s.CollaboratorTimeout <= 0 {
		s.CollaboratorTimeout = 60 * time.Second
	}
	return m, nil
}

// Warning is a non-critical step that failed after state was persisted.
type Warning struct {
	Step string
	Err  error
}

func (w Warning) String() string { return fmt.Sprintf("%s: %v", w.Step, w.Err) }

// Link is one derived share link.
type Link struct {
	Protocol document.Protocol
	URI      string
	Image    string // rendered PNG path, if any
}

// Result reports what an operation did.
type Result struct {
	Username string
	Label    string
	Links    []Link
	Written  []string
	Warnings []Warning
}

func (r *Result) warn(step string, err error) {
	r.Warnings = append(r.Warnings, Warning{Step: step, Err: err})
}

// call runs one external step under the collaborator timeout.
func (m *Manager) call(ctx context.Context, collaborator, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.settings.CollaboratorTimeout)
	defer cancel()
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrCollaboratorTimeout, m.settings.CollaboratorTimeout, err)
	}
	m.metrics.CollaboratorFailed(collaborator)
	m.logger.Warn("collaborator failed", "collaborator", collaborator, "op", op, "error", err)
	return &CollaboratorError{Collaborator: collaborator, Op: op, Err: err}
}

// observe records the outcome of op; use with a named error return.
func (m *Manager) observe(op string, errp *error) {
	result := "ok"
	switch {
	case *errp == nil:
	case errors.Is(*errp, ErrAborted):
		result = "aborted"
	default:
		result = "error"
	}
	m.metrics.ObserveOperation(op, result)
	if err := m.metrics.WriteTextfile(m.settings.MetricsTextfile); err != nil {
		m.logger.Debug("write metrics textfile", "path", m.settings.MetricsTextfile, "error", err)
	}
}

// lock serializes writers across processes.
func (m *Manager) lock() (func(), error) {
	if m.settings.LockPath == "" {
		return func() {}, nil
	}
	l, err := filelock.Acquire(m.settings.LockPath)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := l.Release(); err != nil {
			m.logger.Warn("release lock", "path", l.Path(), "error", err)
		}
	}, nil
}

func (m *Manager) confirm(prompt string) error {
	ok, err := m.confirmer.Confirm(prompt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	if !ok {
		return ErrAborted
	}
	return nil
}

// loadDocument maps repository and parse errors onto the taxonomy.
func (m *Manager) loadDocument() (*document.Document, error) {
	doc, err := m.store.LoadDocument()
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("%w (%v)", ErrConfigMissing, err)
	case errors.Is(err, document.ErrMalformed):
		return nil, fmt.Errorf("%w: %w", ErrConfigMalformed, err)
	default:
		return nil, err
	}
}

// loadWritable also requires a complete document.
func (m *Manager) loadWritable() (*document.Document, error) {
	doc, err := m.loadDocument()
	if err != nil {
		return nil, err
	}
	if err := doc.Complete(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncomplete, err)
	}
	return doc, nil
}

func (m *Manager) loadNodeNames() (sidestate.NodeNames, error) {
	names, err := m.store.LoadNodeNames()
	if err != nil {
		return nil, sideStateErr(err)
	}
	return names, nil
}

func sideStateErr(err error) error {
	if errors.Is(err, sidestate.ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorruptSideState, err)
	}
	return err
}

func (m *Manager) commit(ch repository.Changes) (repository.CommitResult, error) {
	res, err := m.store.Commit(ch)
	if err != nil {
		return res, fmt.Errorf("persist: %w", err)
	}
	if len(res.Written) > 0 {
		m.logger.Info("config persisted", "files", res.Written, "fingerprint", res.Fingerprint)
	}
	return res, nil
}

func (m *Manager) restart(ctx context.Context, res *Result) {
	if m.service == nil {
		return
	}
	if err := m.call(ctx, "service", "restart", m.service.Restart); err != nil {
		res.warn("restart service", err)
	}
}

func (m *Manager) allowPort(ctx context.Context, port int, res *Result) {
	err := m.call(ctx, "firewall", fmt.Sprintf("allow %d", port), func(ctx context.Context) error {
		return m.firewall.Allow(ctx, port)
	})
	if err != nil {
		res.warn(fmt.Sprintf("open port %d", port), err)
	}
}

func (m *Manager) denyPort(ctx context.Context, port int, res *Result) {
	err := m.call(ctx, "firewall", fmt.Sprintf("deny %d", port), func(ctx context.Context) error {
		return m.firewall.Deny(ctx, port)
	})
	if err != nil {
		res.warn(fmt.Sprintf("close port %d", port), err)
	}
}

func (m *Manager) syncUserGauge(doc *document.Document) {
	for _, p := range document.Protocols {
		if names, err := doc.ListUsernames(p); err == nil {
			m.metrics.SetUsers(string(p), len(names))
		}
	}
}

// normalizeName trims and NFC-normalizes an operator-typed name.
func normalizeName(kind, s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, kind)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: %s contains control characters", ErrInvalidInput, kind)
		}
	}
	return s, nil
}

// normalizeLabel is normalizeName but empty is allowed.
func normalizeLabel(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return normalizeName("label", s)
}

// State returns a fresh snapshot of the installation; it is never cached.
func (m *Manager) State(ctx context.Context) (probe.InstalledState, error) {
	if m.prober == nil {
		return probe.InstalledState{QueriedAt: time.Now()}, nil
	}
	return m.prober.QueryInstalledState(ctx)
}
