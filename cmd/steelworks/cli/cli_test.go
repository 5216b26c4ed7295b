package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeMigrations struct {
	calls []string
	steps int
	err   error
}

func (f *fakeMigrations) Up() error   { f.calls = append(f.calls, "up"); return f.err }
func (f *fakeMigrations) Down() error { f.calls = append(f.calls, "down"); return f.err }
func (f *fakeMigrations) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return f.err
}
func (f *fakeMigrations) Version() (uint, bool, error) { return 3, false, f.err }
func (f *fakeMigrations) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.steps = v
	return f.err
}

func TestRunMigrate(t *testing.T) {
	var stdout, stderr bytes.Buffer
	m := &fakeMigrations{}

	require.Zero(t, RunMigrate(m, []string{"up"}, &stdout, &stderr))
	require.Zero(t, RunMigrate(m, []string{"steps", "-1"}, &stdout, &stderr))
	require.Equal(t, -1, m.steps)
	require.Zero(t, RunMigrate(m, []string{"version"}, &stdout, &stderr))
	require.Contains(t, stdout.String(), "version=3 dirty=false")
	require.Equal(t, []string{"up", "steps"}, m.calls)

	require.Equal(t, 2, RunMigrate(m, nil, &stdout, &stderr))
	require.Equal(t, 2, RunMigrate(m, []string{"force", "x"}, &stdout, &stderr))
	require.Equal(t, 2, RunMigrate(m, []string{"sideways"}, &stdout, &stderr))

	failing := &fakeMigrations{err: errors.New("dirty database version 2")}
	stderr.Reset()
	require.Equal(t, 1, RunMigrate(failing, []string{"up"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "dirty database")
}

func TestRunJobsRejectsUnknownTask(t *testing.T) {
	var stdout, stderr bytes.Buffer
	c := NewJobsCLI(asynq.RedisClientOpt{Addr: "127.0.0.1:0"})
	defer func() { _ = c.Close() }()

	require.Equal(t, 2, RunJobs(context.Background(), c, nil, &stdout, &stderr))
	require.Equal(t, 2, RunJobs(context.Background(), c, []string{"trigger"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "stockreport:warmup")
	require.Equal(t, 1, RunJobs(context.Background(), c, []string{"trigger", "mail:send"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "unknown task")
}
