package ingest_test

import (
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/webtrack/internal/archive"
	"github.com/jdholdren/webtrack/internal/ingest"
	"github.com/jdholdren/webtrack/internal/migrations"
	"github.com/jdholdren/webtrack/internal/progress"
	"github.com/jdholdren/webtrack/internal/resources"
	"github.com/jdholdren/webtrack/internal/sqlite"
)

// Everything a job touches, backed by a temp dir database and an in-memory redis.
type env struct {
	repo      sqlite.Repo
	archives  *archive.Store
	progress  *progress.Store
	resources resources.Service
	redis     *miniredis.Miniredis
}

func newEnv(t *testing.T) env {
	t.Helper()

	dir := t.TempDir()
	dbx, err := sqlite.Open(filepath.Join(dir, "webtrack.db"))
	require.NoError(t, err)
	dbx.SetMaxOpenConns(1)
	t.Cleanup(func() { dbx.Close() })
	require.NoError(t, migrations.Run(dbx))

	archives, err := archive.NewStore(filepath.Join(dir, "uploads"), 0)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := sqlite.New(dbx)
	return env{
		repo:      repo,
		archives:  archives,
		progress:  progress.NewStore(client, time.Hour),
		resources: resources.NewService(repo),
		redis:     mr,
	}
}

func (e env) job(every int) *ingest.Job {
	return ingest.NewJob(ingest.JobParams{
		Requests:      e.repo,
		Archives:      e.archives,
		Resources:     e.resources,
		Progress:      e.progress,
		ProgressEvery: every,
	})
}

// Saves an archive with the files and records a pending request for it.
func (e env) submit(t *testing.T, files map[string]string) ingest.Task {
	t.Helper()

	name, err := e.archives.Save("upload.zip", bytes.NewReader(zipOf(t, files)))
	require.NoError(t, err)
	pr, err := e.repo.InsertProcessingRequest(context.Background())
	require.NoError(t, err)

	return ingest.Task{ArchiveName: name, RequestID: pr.ID, TaskID: ingest.NewTaskID()}
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, contents := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func csvOf(lines ...string) map[string]string {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteString("\n")
	}

	return map[string]string{"urls.csv": buf.String()}
}
