// Package autosave persists form values shortly after they stop changing.
// A Saver debounces scheduled saves and never runs two saves at once. A
// scheduled snapshot that arrives while a save is running is saved after it.
// Failed saves go to an emergency backup.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/models"
)

// ErrInFlight is returned by SaveNow when another save is running. The
// request is dropped.
var ErrInFlight = errors.New("save already in progress")

// ErrStopped is returned by operations on a stopped saver
var ErrStopped = errors.New("saver stopped")

// SaveFunc persists a snapshot of the values
type SaveFunc func(ctx context.Context, values map[string]string) error

// BackupStore keeps emergency backups. LoadBackup returns nil and no error
// when no backup exists.
type BackupStore interface {
	SaveBackup(backup *models.EmergencyBackup) error
	LoadBackup(formKey string) (*models.EmergencyBackup, error)
	DeleteBackup(formKey string) error
}

// Options configure a Saver
type Options struct {
	Debounce    time.Duration
	SaveTimeout time.Duration
	// BackupTTL is how long an emergency backup stays restorable
	BackupTTL time.Duration
	Now       func() time.Time
}

// DefaultOptions returns the standard timings
func DefaultOptions() Options {
	return Options{
		Debounce:    500 * time.Millisecond,
		SaveTimeout: 30 * time.Second,
		BackupTTL:   24 * time.Hour,
		Now:         time.Now,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = def.Debounce
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = def.SaveTimeout
	}
	if o.BackupTTL <= 0 {
		o.BackupTTL = def.BackupTTL
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	return o
}

// Saver debounces saves for one form
type Saver struct {
	formKey string
	save    SaveFunc
	backups BackupStore
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	timer    *time.Timer
	latest   map[string]string
	dirty    bool          // latest has not been handed to a save yet
	inflight chan struct{} // closed when the running save returns
	stopped  bool
	lastAt   time.Time
	lastErr  error
	pending  sync.WaitGroup // scheduled or running timer callbacks
}

// New creates a saver. backups may be nil to disable emergency backups.
func New(formKey string, save SaveFunc, backups BackupStore, opts Options, logger *zap.Logger) *Saver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{
		formKey: formKey,
		save:    save,
		backups: backups,
		opts:    opts.withDefaults(),
		logger:  logger.Named("autosave").With(zap.String("form", formKey)),
	}
}

// FormKey returns the key the saver persists under
func (s *Saver) FormKey() string { return s.formKey }

// Schedule records values and restarts the debounce timer. Only the values
// from the last call before the timer fires are saved.
func (s *Saver) Schedule(values map[string]string) {
	if len(values) == 0 {
		return
	}
	snapshot := copyValues(values)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.latest = snapshot
	s.dirty = true
	if s.timer != nil && s.timer.Stop() {
		s.pending.Done()
	}
	s.pending.Add(1)
	s.timer = time.AfterFunc(s.opts.Debounce, s.fire)
}

func (s *Saver) fire() {
	defer s.pending.Done()

	s.mu.Lock()
	s.timer = nil
	s.mu.Unlock()

	if err := s.saveLatest(context.Background()); err != nil {
		s.logger.Warn("scheduled save abandoned", zap.Error(err))
	}
}

// saveLatest saves the latest scheduled values unless a save already took
// them. A running save is waited for first.
func (s *Saver) saveLatest(ctx context.Context) error {
	for {
		s.mu.Lock()
		if wait := s.inflight; wait != nil {
			s.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if !s.dirty {
			s.mu.Unlock()
			return nil
		}
		values := s.latest
		s.dirty = false
		done := s.begin()
		s.mu.Unlock()

		return s.run(ctx, values, done)
	}
}

// begin marks a save as running. s.mu must be held.
func (s *Saver) begin() chan struct{} {
	done := make(chan struct{})
	s.inflight = done
	return done
}

// SaveNow saves values immediately. It returns ErrInFlight without saving
// when another save is running. A failed save is logged and written to the
// emergency backup; it is not returned.
func (s *Saver) SaveNow(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	if s.inflight != nil {
		s.mu.Unlock()
		return ErrInFlight
	}
	done := s.begin()
	s.mu.Unlock()

	return s.run(ctx, copyValues(values), done)
}

func (s *Saver) run(ctx context.Context, snapshot map[string]string, done chan struct{}) error {
	defer close(done)
	ctx, cancel := context.WithTimeout(ctx, s.opts.SaveTimeout)
	defer cancel()

	err := s.save(ctx, snapshot)

	s.mu.Lock()
	s.inflight = nil
	s.lastErr = err
	if err == nil {
		s.lastAt = s.opts.Now()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("save failed", zap.Error(err))
		s.backup(snapshot)
		return nil
	}
	s.logger.Debug("saved", zap.Int("fields", len(snapshot)))
	return nil
}

// Flush cancels any pending timer and saves the latest scheduled values now.
// When a save is running, Flush waits for it and then saves whatever was
// scheduled after it started.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil && s.timer.Stop() {
		s.pending.Done()
	}
	s.timer = nil
	s.mu.Unlock()

	return s.saveLatest(ctx)
}

// Stop cancels the pending save and waits for a running one to finish.
// Later calls to Schedule are ignored. Call Flush first to keep the latest
// scheduled values.
func (s *Saver) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil && s.timer.Stop() {
		s.pending.Done()
	}
	s.timer = nil
	s.mu.Unlock()

	s.pending.Wait()

	s.mu.Lock()
	wait := s.inflight
	s.mu.Unlock()
	if wait != nil {
		<-wait
	}
}

// IsSaving reports whether a save is running
func (s *Saver) IsSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}

// LastSavedAt returns the time of the last successful save
func (s *Saver) LastSavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAt
}

// LastError returns the error of the most recent save, if it failed
func (s *Saver) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Since describes the age of the last save, or "" if nothing was saved
func (s *Saver) Since(now time.Time) string {
	return Humanize(s.LastSavedAt(), now)
}

func (s *Saver) backup(values map[string]string) {
	if s.backups == nil {
		return
	}
	b := &models.EmergencyBackup{FormKey: s.formKey, Data: values, Timestamp: s.opts.Now()}
	if err := s.backups.SaveBackup(b); err != nil {
		s.logger.Error("emergency backup failed", zap.Error(err))
		return
	}
	s.logger.Warn("emergency backup saved")
}

// Restore returns the values of a backup that has not expired. Expired
// backups are deleted.
func (s *Saver) Restore() (map[string]string, error) {
	if s.backups == nil {
		return nil, nil
	}
	b, err := s.backups.LoadBackup(s.formKey)
	if err != nil || b == nil {
		return nil, err
	}
	age := s.opts.Now().Sub(b.Timestamp)
	if age > s.opts.BackupTTL {
		s.logger.Info("discarding expired emergency backup", zap.Duration("age", age))
		return nil, s.backups.DeleteBackup(s.formKey)
	}
	s.logger.Info("emergency backup found", zap.Duration("age", age.Round(time.Second)))
	return copyValues(b.Data), nil
}

// ClearBackup removes the form's emergency backup
func (s *Saver) ClearBackup() error {
	if s.backups == nil {
		return nil
	}
	return s.backups.DeleteBackup(s.formKey)
}

func copyValues(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
