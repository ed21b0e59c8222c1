package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/doclast/docfill/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	saves []map[string]string
	err   error
	block chan struct{}
}

func (r *recorder) save(_ context.Context, values map[string]string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, values)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *recorder) last() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saves) == 0 {
		return nil
	}
	return r.saves[len(r.saves)-1]
}

type memBackups struct {
	mu      sync.Mutex
	backups map[string]*models.EmergencyBackup
}

func newMemBackups() *memBackups {
	return &memBackups{backups: map[string]*models.EmergencyBackup{}}
}

func (m *memBackups) SaveBackup(b *models.EmergencyBackup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups[b.FormKey] = b
	return nil
}

func (m *memBackups) LoadBackup(key string) (*models.EmergencyBackup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backups[key], nil
}

func (m *memBackups) DeleteBackup(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backups, key)
	return nil
}

func fastOptions() Options {
	return Options{Debounce: 20 * time.Millisecond}
}

func TestScheduleDebouncesToLastWrite(t *testing.T) {
	rec := &recorder{}
	s := New("draft-1", rec.save, nil, fastOptions(), nil)
	defer s.Stop()

	s.Schedule(map[string]string{"party": "A"})
	s.Schedule(map[string]string{"party": "Ac"})
	s.Schedule(map[string]string{"party": "Acme"})

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, map[string]string{"party": "Acme"}, rec.last())
	assert.False(t, s.LastSavedAt().IsZero())
}

func TestScheduleIgnoresEmptyValues(t *testing.T) {
	rec := &recorder{}
	s := New("draft-1", rec.save, nil, fastOptions(), nil)
	s.Schedule(nil)
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	assert.Zero(t, rec.count())
}

func TestSaveNowDropsWhileInFlight(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	s := New("draft-1", rec.save, nil, fastOptions(), nil)
	defer s.Stop()

	done := make(chan error, 1)
	go func() { done <- s.SaveNow(context.Background(), map[string]string{"a": "1"}) }()
	require.Eventually(t, s.IsSaving, time.Second, time.Millisecond)

	assert.ErrorIs(t, s.SaveNow(context.Background(), map[string]string{"a": "2"}), ErrInFlight)

	close(rec.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "1", rec.last()["a"])
}

func TestFlushWaitsForRunningSave(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	s := New("draft-1", rec.save, nil, fastOptions(), nil)

	s.Schedule(map[string]string{"name": "v1"})
	require.Eventually(t, s.IsSaving, time.Second, time.Millisecond)
	s.Schedule(map[string]string{"name": "v2"})

	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	close(rec.block)
	require.NoError(t, <-flushed)
	s.Stop()

	assert.Equal(t, 2, rec.count())
	assert.Equal(t, map[string]string{"name": "v2"}, rec.last())
}

func TestScheduledSaveRunsAfterSaveNow(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	s := New("draft-1", rec.save, nil, fastOptions(), nil)
	defer s.Stop()

	done := make(chan error, 1)
	go func() { done <- s.SaveNow(context.Background(), map[string]string{"name": "v1"}) }()
	require.Eventually(t, s.IsSaving, time.Second, time.Millisecond)

	s.Schedule(map[string]string{"name": "v2"})
	time.Sleep(50 * time.Millisecond)
	close(rec.block)
	require.NoError(t, <-done)

	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]string{"name": "v2"}, rec.last())
}

func TestFlushSkipsValuesAlreadySaved(t *testing.T) {
	rec := &recorder{}
	s := New("draft-1", rec.save, nil, fastOptions(), nil)
	defer s.Stop()

	s.Schedule(map[string]string{"party": "Acme"})
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, rec.count())
}

func TestFlushGivesUpWhenContextEnds(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	s := New("draft-1", rec.save, nil, fastOptions(), nil)

	go func() { _ = s.SaveNow(context.Background(), map[string]string{"name": "v1"}) }()
	require.Eventually(t, s.IsSaving, time.Second, time.Millisecond)
	s.Schedule(map[string]string{"name": "v2"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Flush(ctx), context.DeadlineExceeded)

	close(rec.block)
	s.Stop()
}

func TestFailedSaveWritesBackup(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	backups := newMemBackups()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New("draft-1", rec.save, backups, Options{Now: func() time.Time { return now }}, nil)
	defer s.Stop()

	require.NoError(t, s.SaveNow(context.Background(), map[string]string{"party": "Acme"}))
	assert.EqualError(t, s.LastError(), "disk full")
	assert.True(t, s.LastSavedAt().IsZero())

	b, _ := backups.LoadBackup("draft-1")
	require.NotNil(t, b)
	assert.Equal(t, now, b.Timestamp)
	assert.Equal(t, "Acme", b.Data["party"])

	restored, err := s.Restore()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"party": "Acme"}, restored)

	require.NoError(t, s.ClearBackup())
	restored, err = s.Restore()
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestRestoreDiscardsExpiredBackup(t *testing.T) {
	backups := newMemBackups()
	now := time.Date(2024, 5, 2, 12, 0, 1, 0, time.UTC)
	_ = backups.SaveBackup(&models.EmergencyBackup{
		FormKey:   "draft-1",
		Data:      map[string]string{"party": "Acme"},
		Timestamp: now.Add(-24*time.Hour - time.Second),
	})
	s := New("draft-1", (&recorder{}).save, backups, Options{Now: func() time.Time { return now }}, nil)
	defer s.Stop()

	restored, err := s.Restore()
	require.NoError(t, err)
	assert.Nil(t, restored)
	b, _ := backups.LoadBackup("draft-1")
	assert.Nil(t, b)
}

func TestFlushSavesPendingImmediately(t *testing.T) {
	rec := &recorder{}
	s := New("draft-1", rec.save, nil, Options{Debounce: time.Hour}, nil)
	defer s.Stop()

	require.NoError(t, s.Flush(context.Background()))
	assert.Zero(t, rec.count())

	s.Schedule(map[string]string{"party": "Acme"})
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, rec.count())
}

func TestStopCancelsPendingSave(t *testing.T) {
	rec := &recorder{}
	s := New("draft-1", rec.save, nil, Options{Debounce: 30 * time.Millisecond}, nil)
	s.Schedule(map[string]string{"party": "Acme"})
	s.Stop()
	s.Schedule(map[string]string{"party": "Other"})

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestHumanize(t *testing.T) {
	saved := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		after time.Duration
		want  string
	}{
		{0, "a moment ago"},
		{9 * time.Second, "a moment ago"},
		{10 * time.Second, "less than a minute ago"},
		{59 * time.Second, "less than a minute ago"},
		{90 * time.Second, "1 minute ago"},
		{45 * time.Minute, "45 minutes ago"},
		{time.Hour + 5*time.Minute, "1 hour ago"},
		{5 * time.Hour, "5 hours ago"},
		{30 * time.Hour, "yesterday"},
		{72 * time.Hour, "1/15/2024"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Humanize(saved, saved.Add(tt.after)), tt.after.String())
	}
	assert.Empty(t, Humanize(time.Time{}, saved))
}
