package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/learnsync/internal/config"
	"github.com/example/learnsync/internal/queue"
	"github.com/example/learnsync/internal/streak"
	"github.com/example/learnsync/internal/testutil"
	"github.com/example/learnsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type harness struct {
	dir    string
	remote *testutil.FakeRemote
	opts   *RootOptions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{dir: t.TempDir(), remote: testutil.NewFakeRemote()}
	h.opts = &RootOptions{Open: func(ctx context.Context) (*Engine, error) {
		cfg := config.DefaultConfig()
		cfg.DataDir = h.dir
		cfg.LogFile = filepath.Join(h.dir, "learnsync.log")

		local, err := queue.Open(queue.Config{Backend: cfg.QueueBackend, DataDir: cfg.DataDir})
		if err != nil {
			return nil, err
		}
		e, err := NewEngine(cfg, local, h.remote)
		if err != nil {
			local.Close()
			return nil, err
		}
		e.Prober.Probe(ctx)
		return e, nil
	}}
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(h.opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "sync", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestRecordOfflineThenSync(t *testing.T) {
	h := newHarness(t)
	h.remote.SetUnavailable(true)

	out, err := h.run(t, "record", "--user", "u1", "--asset", "hello", "--mode", "speak", "--score", "85", "--format", "json")
	require.NoError(t, err)

	var a models.Attempt
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.False(t, a.Synced)
	require.NotNil(t, a.Score)
	assert.Equal(t, 85, *a.Score)
	assert.Nil(t, a.IsCorrect)

	h.remote.SetUnavailable(false)
	out, err = h.run(t, "sync", "--format", "json")
	require.NoError(t, err)

	var res syncResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Online)
	assert.Equal(t, models.QueueStats{Synced: 1}, res.Queue)
	assert.True(t, h.remote.HasAttempt(a.ID))
}

func TestRecordRejectsInvalidMode(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "record", "--user", "u1", "--asset", "hello", "--mode", "sing")
	assert.Error(t, err)
}

func TestStreakUpdateYAML(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "streak", "--user", "u1", "--update", "--format", "yaml")
	require.NoError(t, err)

	var res streak.Result
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Streak.StreakCount)
	assert.True(t, res.Changed)

	// a second run on the same day shows the stored value
	out, err = h.run(t, "streak", "--user", "u1", "--format", "yaml")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Streak.StreakCount)
}

func TestImportAndProgress(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte("lesson,title,asset,text,translation\nl1,Greetings,hello,Hello,Hola\n"), 0644))

	out, err := h.run(t, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Assets")

	_, err = h.run(t, "record", "--user", "u1", "--asset", "hello", "--lesson", "l1", "--mode", "read", "--correct")
	require.NoError(t, err)

	out, err = h.run(t, "complete-lesson", "--user", "u1", "--lesson", "l1", "--format", "json")
	require.NoError(t, err)
	var p models.LessonProgress
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.True(t, p.IsCompleted)

	out, err = h.run(t, "progress", "--user", "u1", "--format", "json")
	require.NoError(t, err)
	var s models.ProgressSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 1, s.LessonsCompleted)
	assert.Equal(t, 1, s.WordsLearned)

	out, err = h.run(t, "progress", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "Greetings")
}

func TestDeadLetterCommands(t *testing.T) {
	h := newHarness(t)
	h.remote.SetUnavailable(true)

	out, err := h.run(t, "record", "--user", "u1", "--asset", "hello", "--format", "json")
	require.NoError(t, err)
	var a models.Attempt
	require.NoError(t, json.Unmarshal([]byte(out), &a))

	local, err := queue.Open(queue.Config{Backend: queue.BackendSQLite, DataDir: h.dir})
	require.NoError(t, err)
	require.NoError(t, local.DeadLetter(context.Background(), []string{a.ID}))
	require.NoError(t, local.Close())

	out, err = h.run(t, "deadletter", "list", "--format", "json")
	require.NoError(t, err)
	var dead []models.QueuedAttempt
	require.NoError(t, json.Unmarshal([]byte(out), &dead))
	require.Len(t, dead, 1)
	assert.Equal(t, a.ID, dead[0].ID)

	_, err = h.run(t, "deadletter", "requeue", a.ID)
	require.NoError(t, err)

	out, err = h.run(t, "deadletter", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no dead-lettered attempts")
}

func TestMigrateAndLinkTelegram(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "migrate")
	require.NoError(t, err)

	_, err = h.run(t, "link-telegram", "--user", "u1", "--chat", "42")
	require.NoError(t, err)

	h.remote.SetProfileStreak(models.ProfileStreak{UserID: "u1", StreakCount: 2, LastActiveDate: "2024-01-10"})
	targets, err := h.remote.ListReminderTargets(context.Background(), "2024-01-10")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, int64(42), targets[0].ChatID)
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestEngineCloseClosesLogFile(t *testing.T) {
	for _, logFile := range []string{"", "learnsync.log"} {
		t.Run("log file "+logFile, func(t *testing.T) {
			dir := t.TempDir()
			cfg := config.DefaultConfig()
			cfg.DataDir = dir
			if logFile != "" {
				cfg.LogFile = filepath.Join(dir, logFile)
			}

			local, err := queue.Open(queue.Config{Backend: cfg.QueueBackend, DataDir: dir})
			require.NoError(t, err)
			e, err := NewEngine(cfg, local, testutil.NewFakeRemote())
			require.NoError(t, err)

			out := &closeRecorder{}
			e.LogOutput = out
			require.NoError(t, e.Close())
			// stderr is never closed
			assert.Equal(t, logFile != "", out.closed)
		})
	}
}
