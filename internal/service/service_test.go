package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
	"etlpipe/internal/logger"
	"etlpipe/internal/service"
)

// ─────────────────────────────────────────────────────────────
// RunGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunGuard_TryLock(t *testing.T) {
	var g service.RunGuard

	require.True(t, g.TryLock("a.json"))
	require.False(t, g.TryLock("a.json"), "same key must not lock twice")
	require.True(t, g.TryLock("b.json"))
	require.True(t, g.Running("a.json"))

	g.Unlock("a.json")
	g.Unlock("b.json")
	g.Unlock("b.json")
	require.False(t, g.Running("a.json"))
	require.True(t, g.TryLock("a.json"))
	g.Unlock("a.json")
}

func TestRunGuard_WaitAll(t *testing.T) {
	var g service.RunGuard
	require.True(t, g.TryLock("a.json"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("a.json")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	g.WaitAll(ctx)
	require.NoError(t, ctx.Err())
	require.False(t, g.Running("a.json"))
}

func TestRunGuard_WaitAllRespectsContext(t *testing.T) {
	var g service.RunGuard
	require.True(t, g.TryLock("stuck"))
	defer g.Unlock("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	g.WaitAll(ctx)
	require.Less(t, time.Since(start), time.Second)
}

// ─────────────────────────────────────────────────────────────
// PipelineService tests
// ─────────────────────────────────────────────────────────────

func okRun(calls *atomic.Int32) service.RunFunc {
	return func(ctx context.Context) (*etl.RunResult, error) {
		calls.Add(1)
		return &etl.RunResult{Status: domain.RunSuccess}, nil
	}
}

func TestPipelineService_RunOnceEmitsEvents(t *testing.T) {
	var calls atomic.Int32
	em := &service.MockEmitter{}
	svc := service.NewPipelineService("sources.json", okRun(&calls), em, logger.NewTest())

	result, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RunSuccess, result.Status)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, []string{service.EventRunStarted, service.EventRunCompleted}, em.Names())
	require.False(t, svc.Running())
}

func TestPipelineService_RunOnceFailure(t *testing.T) {
	em := &service.MockEmitter{}
	boom := errors.New("store unavailable")
	svc := service.NewPipelineService("sources.json", func(ctx context.Context) (*etl.RunResult, error) {
		return nil, boom
	}, em, logger.NewTest())

	_, err := svc.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{service.EventRunStarted, service.EventRunFailed}, em.Names())
}

func TestPipelineService_OverlappingRunIsSkipped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	em := &service.MockEmitter{}
	svc := service.NewPipelineService("sources.json", func(ctx context.Context) (*etl.RunResult, error) {
		close(started)
		<-release
		return &etl.RunResult{Status: domain.RunSuccess}, nil
	}, em, logger.NewTest())

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunOnce(context.Background())
		done <- err
	}()
	<-started
	require.True(t, svc.Running())

	_, err := svc.RunOnce(context.Background())
	require.ErrorIs(t, err, service.ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.WaitRunning(ctx)
	require.False(t, svc.Running())
	require.Contains(t, em.Names(), service.EventRunSkipped)
}

func TestPipelineService_ScheduleRejectsBadExpression(t *testing.T) {
	var calls atomic.Int32
	svc := service.NewPipelineService("sources.json", okRun(&calls), &service.MockEmitter{}, logger.NewTest())

	err := svc.Schedule(context.Background(), "not a cron")
	require.Error(t, err)
	require.True(t, svc.NextRun().IsZero())
}

func TestPipelineService_ScheduleAndStop(t *testing.T) {
	var calls atomic.Int32
	svc := service.NewPipelineService("sources.json", okRun(&calls), &service.MockEmitter{}, logger.NewTest())

	require.NoError(t, svc.Schedule(context.Background(), "@every 1h"))
	next := svc.NextRun()
	require.False(t, next.IsZero())
	require.True(t, next.After(time.Now()))

	svc.Stop()
	svc.Stop()
	require.True(t, svc.NextRun().IsZero())
	require.Equal(t, int32(0), calls.Load())
}

func TestPipelineService_WatchTriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	var calls atomic.Int32
	svc := service.NewPipelineService(path, okRun(&calls), &service.MockEmitter{}, logger.NewTest())
	require.NoError(t, svc.Watch(context.Background(), path))
	defer svc.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"sources":[]}`), 0o644))

	require.Eventually(t, func() bool { return calls.Load() >= 1 },
		5*time.Second, 50*time.Millisecond)
}

func TestPipelineService_WatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	var calls atomic.Int32
	svc := service.NewPipelineService(path, okRun(&calls), &service.MockEmitter{}, logger.NewTest())
	require.NoError(t, svc.Watch(context.Background(), path))
	defer svc.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	time.Sleep(service.DebounceDelay + 300*time.Millisecond)
	require.Equal(t, int32(0), calls.Load())
}

func TestPipelineService_WatchNeedsPaths(t *testing.T) {
	var calls atomic.Int32
	svc := service.NewPipelineService("x", okRun(&calls), &service.MockEmitter{}, logger.NewTest())
	require.Error(t, svc.Watch(context.Background()))
}

func TestPipelineService_WatchPicksUpAddedPaths(t *testing.T) {
	cfgDir, dataDir := t.TempDir(), t.TempDir()
	cfgPath := filepath.Join(cfgDir, "sources.json")
	dataPath := filepath.Join(dataDir, "cities.csv")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(dataPath, []byte("name\n"), 0o644))

	var calls atomic.Int32
	svc := service.NewPipelineService(cfgPath, okRun(&calls), &service.MockEmitter{}, logger.NewTest())
	require.NoError(t, svc.Watch(context.Background(), cfgPath))
	defer svc.Stop()

	require.NoError(t, svc.AddWatchPaths(dataPath, cfgPath))
	require.NoError(t, os.WriteFile(dataPath, []byte("name\nOslo\n"), 0o644))

	require.Eventually(t, func() bool { return calls.Load() >= 1 },
		5*time.Second, 50*time.Millisecond)
}

func TestPipelineService_AddWatchPathsNeedsWatcher(t *testing.T) {
	var calls atomic.Int32
	svc := service.NewPipelineService("x", okRun(&calls), &service.MockEmitter{}, logger.NewTest())
	require.Error(t, svc.AddWatchPaths("sources.json"))
}

func TestPipelineService_StopDoesNotWaitForScheduledRun(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	svc := service.NewPipelineService("sources.json", func(ctx context.Context) (*etl.RunResult, error) {
		<-release
		return &etl.RunResult{Status: domain.RunSuccess}, nil
	}, &service.MockEmitter{}, logger.NewTest())

	require.NoError(t, svc.Schedule(context.Background(), "@every 1s"))
	require.Eventually(t, svc.Running, 5*time.Second, 20*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		svc.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the scheduled run")
	}
	require.True(t, svc.NextRun().IsZero())

	// The caller bounds the wait for the in-flight run.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	svc.WaitRunning(ctx)
	require.True(t, svc.Running())
}
