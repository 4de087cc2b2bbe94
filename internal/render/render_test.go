package render

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/captioncast/captioncast/internal/config"
	"github.com/captioncast/captioncast/internal/encoder"
	"github.com/captioncast/captioncast/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEncoder struct {
	mu   sync.Mutex
	jobs []encoder.Job
	err  error
}

func (f *fakeEncoder) Encode(_ context.Context, job encoder.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(job.Output, []byte("video"), 0o644)
}

type fakeScheduler struct {
	paths []string
	ttls  []time.Duration
}

func (f *fakeScheduler) Schedule(path string, ttl time.Duration) {
	f.paths = append(f.paths, path)
	f.ttls = append(f.ttls, ttl)
}

type fakeNotifier struct {
	texts []string
}

func (f *fakeNotifier) Notify(_ context.Context, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

type outcomes map[string]int

func (o outcomes) RecordRender(outcome string) { o[outcome]++ }

func testConfig(t *testing.T) config.RenderConfig {
	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "background.mp4"), []byte("bg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(work, "font.ttf"), []byte("font"), 0o644))

	cfg := config.RenderConfig{
		WorkDir:         work,
		OutputDir:       filepath.Join(t.TempDir(), "public"),
		VideoTTLSeconds: 60,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRender_Success(t *testing.T) {
	cfg := testConfig(t)
	enc := &fakeEncoder{}
	sched := &fakeScheduler{}
	stats := outcomes{}
	svc := NewService(cfg, enc, WithScheduler(sched), WithMetrics(stats))
	require.NoError(t, svc.EnsureOutputDir())

	res, err := svc.Render(context.Background(), Request{TopText: "  hello ", BottomText: "world\n"})
	require.NoError(t, err)

	assert.True(t, IsOutputFile(res.FileName), res.FileName)
	assert.Equal(t, filepath.Join(cfg.OutputDir, res.FileName), res.Path)
	assert.FileExists(t, res.Path)
	assert.Equal(t, time.Minute, res.TTL)

	require.Len(t, enc.jobs, 1)
	job := enc.jobs[0]
	assert.Equal(t, "hello", job.TopText)
	assert.Equal(t, "world", job.BottomText)
	assert.Equal(t, filepath.Join(cfg.WorkDir, "background.mp4"), job.Background)
	assert.Equal(t, filepath.Join(cfg.WorkDir, "font.ttf"), job.Font)

	assert.Equal(t, []string{res.Path}, sched.paths)
	assert.Equal(t, []time.Duration{time.Minute}, sched.ttls)
	assert.Equal(t, 1, stats[OutcomeOK])
}

func TestRender_TTLDisabledSchedulesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.VideoTTLSeconds = 0
	sched := &fakeScheduler{}
	svc := NewService(cfg, &fakeEncoder{}, WithScheduler(sched))
	require.NoError(t, svc.EnsureOutputDir())

	res, err := svc.Render(context.Background(), Request{TopText: "a", BottomText: "b"})
	require.NoError(t, err)
	assert.Zero(t, res.TTL)
	assert.Empty(t, sched.paths)
}

func TestRender_ValidationSpawnsNothing(t *testing.T) {
	cfg := testConfig(t)
	enc := &fakeEncoder{}
	stats := outcomes{}
	svc := NewService(cfg, enc, WithMetrics(stats))

	for _, req := range []Request{
		{},
		{TopText: "top"},
		{BottomText: "bottom"},
		{TopText: "   ", BottomText: "bottom"},
		{TopText: "top", BottomText: "\n\t"},
	} {
		_, err := svc.Render(context.Background(), req)
		var verr *errors.ErrValidation
		require.True(t, stderrors.As(err, &verr), "request %+v", req)
		assert.Equal(t, "top_text and bottom_text are required", verr.Error())
	}

	assert.Empty(t, enc.jobs)
	assert.Equal(t, 5, stats[OutcomeInvalid])
	_, err := os.Stat(cfg.OutputDir)
	assert.True(t, os.IsNotExist(err), "no output should be created")
}

func TestRender_MissingAssets(t *testing.T) {
	cfg := testConfig(t)
	enc := &fakeEncoder{}
	svc := NewService(cfg, enc)

	require.NoError(t, os.Remove(filepath.Join(cfg.WorkDir, "background.mp4")))
	_, err := svc.Render(context.Background(), Request{TopText: "a", BottomText: "b"})
	var missing *errors.ErrDependencyMissing
	require.True(t, stderrors.As(err, &missing))
	assert.Equal(t, "background.mp4 missing", missing.Error())

	require.NoError(t, os.WriteFile(filepath.Join(cfg.WorkDir, "background.mp4"), []byte("bg"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(cfg.WorkDir, "font.ttf")))
	_, err = svc.Render(context.Background(), Request{TopText: "a", BottomText: "b"})
	require.True(t, stderrors.As(err, &missing))
	assert.Equal(t, "font.ttf missing", missing.Error())

	assert.Empty(t, enc.jobs)
}

func TestRender_EncodeFailure(t *testing.T) {
	cfg := testConfig(t)
	encErr := &errors.ErrEncode{Output: "x", Err: stderrors.New("exit status 1")}
	sched := &fakeScheduler{}
	notifier := &fakeNotifier{}
	stats := outcomes{}
	svc := NewService(cfg, &fakeEncoder{err: encErr}, WithScheduler(sched), WithNotifier(notifier), WithMetrics(stats))
	require.NoError(t, svc.EnsureOutputDir())

	_, err := svc.Render(context.Background(), Request{TopText: "a", BottomText: "b"})
	assert.ErrorIs(t, err, encErr)
	assert.Empty(t, sched.paths)
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "exit status 1")
	assert.Equal(t, 1, stats[OutcomeEncodeFailed])
}

func TestRender_IDFailure(t *testing.T) {
	cfg := testConfig(t)
	svc := NewService(cfg, &fakeEncoder{})
	svc.newID = func() (string, error) { return "", stderrors.New("entropy exhausted") }

	_, err := svc.Render(context.Background(), Request{TopText: "a", BottomText: "b"})
	assert.ErrorContains(t, err, "entropy exhausted")
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id, err := NewID()
		require.NoError(t, err)
		require.Len(t, id, 16)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
		require.True(t, IsOutputFile(FileName(id)))
	}
}

func TestIsOutputFile(t *testing.T) {
	assert.True(t, IsOutputFile("out_0123456789abcdef.mp4"))
	assert.False(t, IsOutputFile("out_0123456789ABCDEF.mp4"))
	assert.False(t, IsOutputFile("out_0123.mp4"))
	assert.False(t, IsOutputFile("background.mp4"))
	assert.False(t, IsOutputFile("out_0123456789abcdef.mov"))
	assert.False(t, IsOutputFile("out_zz23456789abcdef.mp4"))
}
