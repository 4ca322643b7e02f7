package tmate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/ormanaq/tmate/internal/config"
	"github.com/ormanaq/tmate/internal/controller"
	"github.com/ormanaq/tmate/internal/history"
	"github.com/ormanaq/tmate/internal/history/factory"
	"github.com/ormanaq/tmate/internal/hub"
	"github.com/ormanaq/tmate/internal/logstore"
	"github.com/ormanaq/tmate/internal/metrics"
	"github.com/ormanaq/tmate/internal/server"
	"github.com/ormanaq/tmate/internal/session"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Session = session.Session

type Status = session.Status

const (
	StatusRunning = session.StatusRunning
	StatusStopped = session.StatusStopped
	StatusError   = session.StatusError
)

type Log = logstore.Log

type CreateSpec = controller.CreateSpec

type Options = controller.Options

type Observer = hub.Observer

type HistorySink = history.Sink

var (
	ErrNotFound    = controller.ErrNotFound
	ErrSpawnFailed = controller.ErrSpawnFailed
)

// Manager is a thin facade over the internal lifecycle controller. It
// provides a stable public API for embedding.
type Manager struct{ inner *controller.Controller }

func New(opts Options) *Manager { return &Manager{inner: controller.New(opts)} }

func (m *Manager) Create(spec CreateSpec) (Session, error) { return m.inner.Create(spec) }
func (m *Manager) Get(id string) (Session, error)          { return m.inner.Get(id) }
func (m *Manager) Stop(id string) (Session, error)         { return m.inner.Stop(id) }
func (m *Manager) Restart(id string) (Session, error)      { return m.inner.Restart(id) }
func (m *Manager) Delete(id string) error                  { return m.inner.Delete(id) }
func (m *Manager) ListAll() []Session                      { return m.inner.ListAll() }
func (m *Manager) ListActive() []Session                   { return m.inner.ListActive() }
func (m *Manager) Logs(id string) []Log                    { return m.inner.Logs(id) }
func (m *Manager) Recent(limit int) []Log                  { return m.inner.Recent(limit) }
func (m *Manager) ClearLogs(id string)                     { m.inner.ClearLogs(id) }
func (m *Manager) Subscribe() *Observer                    { return m.inner.Subscribe() }
func (m *Manager) Unsubscribe(o *Observer)                 { m.inner.Unsubscribe(o) }
func (m *Manager) Shutdown()                               { m.inner.Shutdown() }

type Config = cfg.Config

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// NewHistorySink builds a history sink from a DSN (sqlite, postgres or
// clickhouse).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts an HTTP server exposing the daemon API using the
// given manager.
func NewHTTPServer(addr, basePath string, m *Manager) *http.Server {
	return server.NewServer(addr, basePath, m.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
