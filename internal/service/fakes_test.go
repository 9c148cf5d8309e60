package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/creamcroissant/sbnode/internal/credential"
	"github.com/creamcroissant/sbnode/internal/document"
	"github.com/creamcroissant/sbnode/internal/hostaddr"
	"github.com/creamcroissant/sbnode/internal/metrics"
	"github.com/creamcroissant/sbnode/internal/repository"
	"github.com/creamcroissant/sbnode/internal/support/logging"
)

type fakeFirewall struct {
	mu      sync.Mutex
	allowed []int
	denied  []int
	err     error
}

func (f *fakeFirewall) Allow(_ context.Context, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed = append(f.allowed, port)
	return f.err
}

func (f *fakeFirewall) Deny(_ context.Context, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied = append(f.denied, port)
	return f.err
}

type fakeService struct {
	restarts int
	err      error
	block    bool
}

func (f *fakeService) Restart(ctx context.Context) error {
	f.restarts++
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

type fakeRenderer struct {
	terminal []string
	images   []string
}

func (f *fakeRenderer) RenderTerminal(uri string) error {
	f.terminal = append(f.terminal, uri)
	return nil
}

func (f *fakeRenderer) RenderImage(uri, username, label string) (string, error) {
	path := fmt.Sprintf("/tmp/qrcode/%s_%s.png", username, label)
	f.images = append(f.images, path)
	return path, nil
}

type fakeCerts struct {
	dir   string
	calls int
}

func (f *fakeCerts) Generate(_ context.Context, domain string) (string, string, error) {
	f.calls++
	return filepath.Join(f.dir, "cert.pem"), filepath.Join(f.dir, "key.pem"), nil
}

type fakeKeys struct {
	pair credential.KeyPair
	err  error
}

func (f fakeKeys) Generate(context.Context) (credential.KeyPair, error) {
	return f.pair, f.err
}

// failingStore wraps a repository and fails every commit.
type failingStore struct {
	*repository.Repository
}

func (failingStore) Commit(repository.Changes) (repository.CommitResult, error) {
	return repository.CommitResult{}, errors.New("disk full")
}

type resolverFunc func(ctx context.Context) (string, error)

func (f resolverFunc) Resolve(ctx context.Context) (string, error) { return f(ctx) }

type harness struct {
	t        *testing.T
	dir      string
	repo     *repository.Repository
	firewall *fakeFirewall
	service  *fakeService
	renderer *fakeRenderer
	certs    *fakeCerts
	answers  []bool
	prompts  []string
	keys     credential.KeyPair
	opts     Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	pair, err := credential.X25519KeyPair{}.Generate(context.Background())
	require.NoError(t, err)

	h := &harness{
		t:        t,
		dir:      dir,
		repo:     repository.New(filepath.Join(dir, "config.json"), filepath.Join(dir, "cert", "keys.json"), filepath.Join(dir, "node_names.json")),
		firewall: &fakeFirewall{},
		service:  &fakeService{},
		renderer: &fakeRenderer{},
		certs:    &fakeCerts{dir: filepath.Join(dir, "cert")},
		keys:     pair,
	}
	h.opts = Options{
		Store:     h.repo,
		Generator: credential.NewGenerator(fakeKeys{pair: pair}),
		Certs:     h.certs,
		Firewall:  h.firewall,
		Service:   h.service,
		Renderer:  h.renderer,
		Host:      hostaddr.Static("203.0.113.7"),
		Confirmer: ConfirmFunc(h.confirm),
		Metrics:   metrics.New(metrics.DefaultConfig()),
		Logger:    logging.Discard(),
		Settings: Settings{
			VLESSPort:           18890,
			Hysteria2Port:       443,
			ServerName:          "www.speedtest.net",
			SecretLength:        16,
			UpMbps:              1000,
			DownMbps:            1000,
			ObfsPassword:        "obfs-pass",
			Insecure:            true,
			CollaboratorTimeout: time.Second,
			CloseEmptyListeners: true,
			RenderQR:            true,
			LockPath:            filepath.Join(dir, ".sbnode.lock"),
			MetricsTextfile:     filepath.Join(dir, "sbnode.prom"),
		},
	}
	return h
}

// confirm pops the next scripted answer; with none left it says yes.
func (h *harness) confirm(prompt string) (bool, error) {
	h.prompts = append(h.prompts, prompt)
	if len(h.answers) == 0 {
		return true, nil
	}
	a := h.answers[0]
	h.answers = h.answers[1:]
	return a, nil
}

func (h *harness) manager() *Manager {
	h.t.Helper()
	m, err := NewManager(h.opts)
	require.NoError(h.t, err)
	return m
}

func (h *harness) create(username string) *Manager {
	h.t.Helper()
	m := h.manager()
	_, err := m.CreateConfig(context.Background(), CreateRequest{Username: username})
	require.NoError(h.t, err)
	return m
}

func (h *harness) configBytes() []byte {
	h.t.Helper()
	data, err := os.ReadFile(h.repo.ConfigPath())
	require.NoError(h.t, err)
	return data
}

func (h *harness) doc() *document.Document {
	h.t.Helper()
	doc, err := h.repo.LoadDocument()
	require.NoError(h.t, err)
	return doc
}

func (h *harness) writeFile(path, content string) {
	h.t.Helper()
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
}
