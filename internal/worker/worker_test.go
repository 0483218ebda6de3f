package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/jdholdren/webtrack/internal/archive"
	"github.com/jdholdren/webtrack/internal/ingest"
	"github.com/jdholdren/webtrack/internal/migrations"
	"github.com/jdholdren/webtrack/internal/progress"
	"github.com/jdholdren/webtrack/internal/resources"
	"github.com/jdholdren/webtrack/internal/sqlite"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

func intPtr(i int) *int { return &i }

func TestProcessArchive(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterActivity(&activities{})

	task := ingest.Task{ArchiveName: "a.zip", RequestID: 1, TaskID: "ingest-1"}
	want := webtrack.Snapshot{
		Status:    webtrack.RequestStatusSuccess,
		Processed: intPtr(2),
		Total:     intPtr(2),
		Errors:    webtrack.SnapshotErrors{URLs: []string{}},
	}
	env.OnActivity(acts.IngestArchive, mock.Anything, task).Return(want, nil).Once()

	env.ExecuteWorkflow(workflows{}.ProcessArchive, task)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var got webtrack.Snapshot
	require.NoError(t, env.GetWorkflowResult(&got))
	assert.Equal(t, want, got)
	env.AssertExpectations(t)
}

func TestProcessArchive_NoRetry(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterActivity(&activities{})

	task := ingest.Task{ArchiveName: "a.zip", RequestID: 1, TaskID: "ingest-1"}
	env.OnActivity(acts.IngestArchive, mock.Anything, task).
		Return(webtrack.Snapshot{}, activityError(errors.New("database is locked")))

	env.ExecuteWorkflow(workflows{}.ProcessArchive, task)
	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Equal(t, errTypeInternal, errType(err))
	env.AssertNumberOfCalls(t, "IngestArchive", 1)
}

func TestCheckAvailability(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterActivity(&activities{})

	env.OnActivity(acts.ResourceIDs, mock.Anything).Return([]int64{1, 2, 3}, nil).Once()
	env.OnActivity(acts.CheckResource, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(workflows{}.CheckAvailability)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertNumberOfCalls(t, "CheckResource", 3)
}

func TestActivityError(t *testing.T) {
	tests := []struct {
		err           error
		wantType      string
		wantRetryable bool
	}{
		{err: fmt.Errorf("request 1 is success: %w", webtrack.ErrRequestFinalized), wantType: errTypeRequestFinalized},
		{err: webtrack.ErrProcessingRequestNotFound, wantType: errTypeRequestNotFound},
		{err: errors.New("disk full"), wantType: errTypeInternal, wantRetryable: true},
	}

	for _, test := range tests {
		t.Run(test.wantType, func(t *testing.T) {
			err := activityError(test.err)

			var appErr *temporal.ApplicationError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, test.wantType, errType(err))
			assert.Equal(t, !test.wantRetryable, appErr.NonRetryable())
			assert.ErrorIs(t, err, test.err)
		})
	}

	assert.Equal(t, "", errType(errors.New("plain")))
	assert.Equal(t, "", errType(nil))
}

func TestQueue_Enqueue(t *testing.T) {
	var (
		ctx  = context.Background()
		cli  = &mocks.Client{}
		task = ingest.Task{ArchiveName: "a.zip", RequestID: 7, TaskID: "ingest-7"}
	)
	cli.On("ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "ingest-7" && o.TaskQueue == TaskQueue
		}),
		mock.Anything,
		task,
	).Return(&mocks.WorkflowRun{}, nil).Once()

	require.NoError(t, NewQueue(cli).Enqueue(ctx, task))
	cli.AssertExpectations(t)

	cli = &mocks.Client{}
	cli.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, task).
		Return(nil, errors.New("unavailable")).Once()
	assert.Error(t, NewQueue(cli).Enqueue(ctx, task))
}

func TestEnsureCheckSchedule(t *testing.T) {
	ctx := context.Background()

	t.Run("missing schedule is created", func(t *testing.T) {
		var (
			sc     = &mocks.ScheduleClient{}
			handle = &mocks.ScheduleHandle{}
		)
		sc.On("GetHandle", mock.Anything, checkScheduleID).Return(handle)
		handle.On("Describe", mock.Anything).Return(nil, serviceerror.NewNotFound("schedule not found"))
		sc.On("Create", mock.Anything, mock.MatchedBy(func(o client.ScheduleOptions) bool {
			return o.ID == checkScheduleID && o.Spec.Intervals[0].Every == time.Hour
		})).Return(handle, nil).Once()

		require.NoError(t, ensureCheckSchedule(ctx, sc, workflows{}, time.Hour))
		sc.AssertExpectations(t)
	})

	t.Run("existing schedule is updated", func(t *testing.T) {
		var (
			sc     = &mocks.ScheduleClient{}
			handle = &mocks.ScheduleHandle{}
		)
		sc.On("GetHandle", mock.Anything, checkScheduleID).Return(handle)
		handle.On("Describe", mock.Anything).Return(&client.ScheduleDescription{}, nil)
		handle.On("Update", mock.Anything, mock.Anything).Return(nil).Once()

		require.NoError(t, ensureCheckSchedule(ctx, sc, workflows{}, time.Hour))
		handle.AssertExpectations(t)
		sc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("other describe errors are returned", func(t *testing.T) {
		var (
			sc     = &mocks.ScheduleClient{}
			handle = &mocks.ScheduleHandle{}
		)
		sc.On("GetHandle", mock.Anything, checkScheduleID).Return(handle)
		handle.On("Describe", mock.Anything).Return(nil, serviceerror.NewUnavailable("frontend down"))

		assert.Error(t, ensureCheckSchedule(ctx, sc, workflows{}, time.Hour))
		sc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		handle.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

// Real stores behind the activities.
func newTestActivities(t *testing.T) (activities, *archive.Store, sqlite.Repo) {
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
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	repo := sqlite.New(dbx)
	res := resources.NewService(repo)
	job := ingest.NewJob(ingest.JobParams{
		Requests:  repo,
		Archives:  archives,
		Resources: res,
		Progress:  progress.NewStore(rdb, time.Hour),
	})

	return activities{job: job, resources: res, client: &http.Client{Timeout: time.Second}}, archives, repo
}

func TestIngestArchiveActivity(t *testing.T) {
	a, archives, repo := newTestActivities(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("urls.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("http://a.com\nnope\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	name, err := archives.Save("urls.zip", &buf)
	require.NoError(t, err)
	pr, err := repo.InsertProcessingRequest(context.Background())
	require.NoError(t, err)
	task := ingest.Task{ArchiveName: name, RequestID: pr.ID, TaskID: "ingest-x"}

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(&a)

	val, err := env.ExecuteActivity(a.IngestArchive, task)
	require.NoError(t, err)
	var snap webtrack.Snapshot
	require.NoError(t, val.Get(&snap))
	assert.Equal(t, webtrack.RequestStatusPartialFailure, snap.Status)
	assert.Equal(t, []string{"nope"}, snap.Errors.URLs)

	// A second run of the same task is refused
	_, err = env.ExecuteActivity(a.IngestArchive, task)
	require.Error(t, err)
	assert.Equal(t, errTypeRequestFinalized, errType(err))
}

func TestCheckResourceActivity(t *testing.T) {
	a, _, repo := newTestActivities(t)
	ctx := context.Background()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	gone := httptest.NewServer(http.NotFoundHandler())
	gone.Close()

	upRes, err := a.resources.Create(ctx, up.URL+"/ok")
	require.NoError(t, err)
	downRes, err := a.resources.Create(ctx, down.URL+"/down")
	require.NoError(t, err)
	goneRes, err := a.resources.Create(ctx, gone.URL+"/gone")
	require.NoError(t, err)
	ftpRes, err := a.resources.Create(ctx, "ftp://files.example.com/a.txt")
	require.NoError(t, err)

	// Start the up resource off with a failure so the reset shows
	_, err = repo.UpdateAvailability(ctx, upRes.ID, false)
	require.NoError(t, err)

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(&a)

	for _, id := range []int64{upRes.ID, downRes.ID, goneRes.ID, ftpRes.ID, 9999} {
		_, err := env.ExecuteActivity(a.CheckResource, id)
		require.NoError(t, err, "resource %d", id)
	}

	tests := []struct {
		id        int64
		wantCount int
		wantEvent webtrack.EventType
	}{
		{id: upRes.ID, wantCount: 0, wantEvent: webtrack.EventTypeAvailable},
		{id: downRes.ID, wantCount: 1, wantEvent: webtrack.EventTypeUnavailable},
		{id: goneRes.ID, wantCount: 1, wantEvent: webtrack.EventTypeUnavailable},
		{id: ftpRes.ID, wantCount: 0, wantEvent: webtrack.EventTypeAdded},
	}
	for _, test := range tests {
		res, err := repo.Resource(ctx, test.id)
		require.NoError(t, err)
		assert.Equal(t, test.wantCount, res.UnavailableCount, res.FullURL)

		items, err := repo.ResourceNewsItems(ctx, test.id)
		require.NoError(t, err)
		assert.Equal(t, test.wantEvent, items[len(items)-1].EventType, res.FullURL)
	}
}
