// Package schemarefresh loads the data document, builds schema snapshots from
// it, and swaps in a fresh snapshot when the document changes on disk.
package schemarefresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/logging"
	"github.com/eurisko-info-lab/json-graphql-server/internal/naming"
	"github.com/eurisko-info-lab/json-graphql-server/internal/observability"
	"github.com/eurisko-info-lab/json-graphql-server/internal/requesthandler"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrReloadUnsupported is returned when the data source cannot be re-read.
var ErrReloadUnsupported = errors.New("data source does not support reload")

const (
	TriggerStartup      = "startup"
	TriggerPoll         = "poll"
	TriggerPollNoChange = "poll_no_change"
	TriggerWatch        = "watch"
	TriggerManual       = "manual"
)

const watchDebounce = 100 * time.Millisecond

// Config controls data loading and refresh behavior.
type Config struct {
	Source      string
	Format      datastore.Format
	Naming      naming.Config
	HTTP        requesthandler.HTTPConfig
	Logger      *logging.Logger
	Metrics     *observability.DataMetrics
	MinInterval time.Duration
	MaxInterval time.Duration
	Watch       bool
}

// Manager maintains and refreshes data snapshots.
type Manager struct {
	source      string
	format      datastore.Format
	build       BuildConfig
	logger      *logging.Logger
	metrics     *observability.DataMetrics
	minInterval time.Duration
	maxInterval time.Duration
	watch       bool

	// read is swapped in tests.
	read func(string) ([]byte, error)

	active    atomic.Pointer[Snapshot]
	refreshMu sync.Mutex
	wg        sync.WaitGroup
}

// NewManager loads the data document, builds the initial snapshot, and
// returns a manager. A document that fails to load is fatal here.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("data refresh manager requires a data source")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}

	minInterval, maxInterval := cfg.MinInterval, cfg.MaxInterval
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	componentLogger := cfg.Logger.WithFields(slog.String("component", "data_refresh"))
	m := &Manager{
		source: cfg.Source,
		format: cfg.Format,
		build: BuildConfig{
			Naming: cfg.Naming,
			HTTP:   cfg.HTTP,
			Logger: componentLogger.Logger,
		},
		logger:      componentLogger,
		metrics:     cfg.Metrics,
		minInterval: minInterval,
		maxInterval: maxInterval,
		watch:       cfg.Watch,
		read:        datastore.ReadSource,
	}

	if _, err := m.refresh(context.Background(), TriggerStartup); err != nil {
		return nil, err
	}
	return m, nil
}

// Reloadable reports whether the source can be re-read after startup.
func (m *Manager) Reloadable() bool {
	return m.source != datastore.StdinSource
}

// Start begins the background poll loop and, when configured, the file
// watcher. Both stop when ctx is canceled.
func (m *Manager) Start(ctx context.Context) {
	if !m.Reloadable() {
		m.logger.Info("data reload disabled for stdin source")
		return
	}

	if m.minInterval > 0 && m.maxInterval > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.refreshLoop(ctx)
		}()
	} else {
		m.logger.Info("data polling disabled")
	}

	if m.watch {
		if err := m.startWatcher(ctx); err != nil {
			m.logger.Warn("failed to watch data file", slog.String("path", m.source), slog.String("error", err.Error()))
		}
	}
}

// Handler returns an HTTP handler that serves every request from the
// snapshot current at the time the request arrives.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := m.CurrentSnapshot()
		if snapshot == nil || snapshot.Handler == nil {
			http.Error(w, "schema not ready", http.StatusServiceUnavailable)
			return
		}
		snapshot.Handler.ServeHTTP(w, r)
	})
}

// CurrentSnapshot returns the active snapshot.
func (m *Manager) CurrentSnapshot() *Snapshot {
	return m.active.Load()
}

// CurrentFingerprint returns the fingerprint of the active snapshot.
func (m *Manager) CurrentFingerprint() string {
	if snapshot := m.CurrentSnapshot(); snapshot != nil {
		return snapshot.Fingerprint
	}
	return ""
}

// CollectionForRootField maps a root field of the active schema to its
// collection key.
func (m *Manager) CollectionForRootField(name string) (string, bool) {
	snapshot := m.CurrentSnapshot()
	if snapshot == nil {
		return "", false
	}
	return snapshot.Model.CollectionForRootField(name)
}

// RefreshNow forces a reload check.
func (m *Manager) RefreshNow() error {
	return m.RefreshNowContext(context.Background())
}

// RefreshNowContext re-reads the data source and swaps in a new snapshot
// when its content changed. An unchanged document keeps the live store so
// mutations made since the last load survive.
func (m *Manager) RefreshNowContext(ctx context.Context) error {
	if !m.Reloadable() {
		return ErrReloadUnsupported
	}
	_, err := m.refresh(ctx, TriggerManual)
	return err
}

// Wait blocks until the background goroutines exit or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("data polling stopped")
			return
		case <-timer.C:
			m.refreshOnce(ctx, &interval)
			timer.Reset(interval)
		}
	}
}

// refreshOnce runs one poll and adjusts the poll interval: it backs off while
// nothing changes and resets after a change or a failure.
func (m *Manager) refreshOnce(ctx context.Context, interval *time.Duration) {
	changed, err := m.refresh(ctx, TriggerPoll)
	if err != nil || changed {
		*interval = m.minInterval
		return
	}
	*interval = nextInterval(*interval, m.minInterval, m.maxInterval)
}

// refresh reads the source and rebuilds when the fingerprint differs from
// the active snapshot. A failed rebuild keeps the previous snapshot.
func (m *Manager) refresh(ctx context.Context, trigger string) (changed bool, err error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	ctx, span := otel.Tracer("json-graphql-server/data").Start(ctx, "data.reload")
	span.SetAttributes(attribute.String("data.reload.trigger", trigger))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Bool("data.reload.changed", changed))
		span.End()
	}()

	raw, err := m.read(m.source)
	if err != nil {
		err = fmt.Errorf("failed to read data: %w", err)
		m.fail(ctx, trigger, start, err)
		return false, err
	}

	fingerprint := Fingerprint(raw)
	current := m.CurrentSnapshot()
	if current != nil && current.Fingerprint == fingerprint {
		if trigger == TriggerPoll {
			trigger = TriggerPollNoChange
		}
		m.metrics.RecordReload(ctx, time.Since(start), true, trigger)
		return false, nil
	}

	format := m.format
	if format == datastore.FormatAuto || format == "" {
		format = datastore.DetectFormat(m.source)
	}
	data, err := datastore.Decode(raw, format)
	if err != nil {
		err = fmt.Errorf("failed to decode data: %w", err)
		m.fail(ctx, trigger, start, err)
		return false, err
	}

	snapshot, err := BuildSnapshot(ctx, datastore.New(data), fingerprint, m.build)
	if err != nil {
		m.fail(ctx, trigger, start, err)
		return false, err
	}

	m.active.Store(snapshot)
	m.metrics.RecordReload(ctx, time.Since(start), true, trigger)
	m.logger.Info("data loaded",
		slog.String("trigger", trigger),
		slog.String("fingerprint", fingerprint),
		slog.Int("collections", len(snapshot.Model.Collections)),
		slog.Duration("duration", time.Since(start)),
	)
	return true, nil
}

func (m *Manager) fail(ctx context.Context, trigger string, start time.Time, err error) {
	m.metrics.RecordReload(ctx, time.Since(start), false, trigger)
	if m.CurrentSnapshot() != nil {
		m.logger.Error("data reload failed, keeping previous snapshot",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
	}
}

// startWatcher watches the directory holding the data file, since editors
// often replace the file instead of writing it in place.
func (m *Manager) startWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	target, err := filepath.Abs(m.source)
	if err != nil {
		_ = watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer watcher.Close()
		m.watchLoop(ctx, watcher.Events, watcher.Errors, target)
	}()
	m.logger.Info("watching data file", slog.String("path", target))
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, target string) {
	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("data watch stopped")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if !isDataFileEvent(event, target) {
				continue
			}
			debounce.Reset(watchDebounce)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.logger.Warn("data watch error", slog.String("error", err.Error()))
		case <-debounce.C:
			_, _ = m.refresh(ctx, TriggerWatch)
		}
	}
}

func isDataFileEvent(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}
