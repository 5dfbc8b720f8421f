package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixmint/genapi/internal/genai"
	"github.com/pixmint/genapi/internal/model"
)

// succeededTask creates a finalized task with one primary output of
// the given size (nil means unknown).
func succeededTask(t *testing.T, tasks *fakeTaskRepo, gw *fakeGateway, size *int64) model.Task {
	t.Helper()

	ctx := context.Background()
	id, err := tasks.Create(ctx, model.Task{Status: model.TaskStatusRunning})
	require.NoError(t, err)

	path := "tasks/" + id.String() + "/0.png"
	if size != nil {
		data := make([]byte, int(*size))
		_, err = gw.Upload(ctx, "generated", path, data, "image/png", true)
		require.NoError(t, err)
	}

	_, err = tasks.AddOutput(ctx, model.Output{
		TaskID:        id,
		Index:         0,
		StorageBucket: "generated",
		StoragePath:   path,
		Size:          size,
	})
	require.NoError(t, err)
	require.NoError(t, tasks.Finalize(ctx, id, model.TaskStatusSucceeded, nil, nil))

	task, err := tasks.GetByID(ctx, id)
	require.NoError(t, err)
	return task
}

func int64ptr(v int64) *int64 { return &v }

func TestFetchResult_InlineBelowThreshold(t *testing.T) {
	tasks := newFakeTaskRepo()
	gw := newFakeGateway()
	svc := newTestService(tasks, nil, &fakeBackend{stream: &fakeStream{}}, gw)

	task := succeededTask(t, tasks, gw, int64ptr(799_999))

	res, err := svc.FetchResult(context.Background(), task.ID)
	require.NoError(t, err)
	assert.True(t, res.Inline)
	assert.NotEmpty(t, res.Base64)
	assert.Empty(t, res.RedirectURL)
}

func TestFetchResult_RedirectAtThreshold(t *testing.T) {
	tasks := newFakeTaskRepo()
	gw := newFakeGateway()
	svc := newTestService(tasks, nil, &fakeBackend{stream: &fakeStream{}}, gw)

	task := succeededTask(t, tasks, gw, int64ptr(800_000))

	res, err := svc.FetchResult(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, res.Inline)
	assert.Contains(t, res.RedirectURL, "https://signed.test/")
	assert.Contains(t, res.RedirectURL, "ttl=300")
}

func TestFetchResult_RedirectOnUnknownSize(t *testing.T) {
	tasks := newFakeTaskRepo()
	gw := newFakeGateway()
	svc := newTestService(tasks, nil, &fakeBackend{stream: &fakeStream{}}, gw)

	task := succeededTask(t, tasks, gw, nil)

	res, err := svc.FetchResult(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, res.Inline)
	assert.NotEmpty(t, res.RedirectURL)
}

func TestFetchResult_NotReadyWhileRunning(t *testing.T) {
	tasks := newFakeTaskRepo()
	svc := newTestService(tasks, nil, &fakeBackend{stream: &fakeStream{}}, newFakeGateway())

	id, err := tasks.Create(context.Background(), model.Task{Status: model.TaskStatusRunning})
	require.NoError(t, err)

	_, err = svc.FetchResult(context.Background(), id)
	assert.ErrorIs(t, err, ErrResultNotReady)
}

func TestFetchResult_NotReadyWhenFailed(t *testing.T) {
	tasks := newFakeTaskRepo()
	svc := newTestService(tasks, nil, &fakeBackend{stream: &fakeStream{}}, newFakeGateway())

	ctx := context.Background()
	id, err := tasks.Create(ctx, model.Task{Status: model.TaskStatusRunning})
	require.NoError(t, err)
	msg := "boom"
	require.NoError(t, tasks.Finalize(ctx, id, model.TaskStatusFailed, nil, &msg))

	_, err = svc.FetchResult(ctx, id)
	assert.ErrorIs(t, err, ErrResultNotReady)
}

func TestStatus_ResolvesPrimaryOutputURL(t *testing.T) {
	tasks := newFakeTaskRepo()
	gw := newFakeGateway()
	svc := newTestService(tasks, nil, &fakeBackend{stream: &fakeStream{}}, gw)

	task := succeededTask(t, tasks, gw, int64ptr(10))

	got, url, err := svc.Status(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSucceeded, got.Status)
	assert.Contains(t, url, "https://signed.test/generated/")
}

func TestStatus_ExternalURLReturnedVerbatim(t *testing.T) {
	tasks := newFakeTaskRepo()
	gw := newFakeGateway()
	svc := newTestService(tasks, nil, &fakeBackend{stream: &fakeStream{
		chunks: []*genai.Chunk{externalChunk("https://files.example.com/out.png")},
	}}, gw)

	task, _, err := svc.Generate(context.Background(), GenerateParams{PromptText: "draw"})
	require.NoError(t, err)

	_, url, err := svc.Status(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/out.png", url)

	res, err := svc.FetchResult(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, res.Inline)
	assert.Equal(t, "https://files.example.com/out.png", res.RedirectURL)
}

func TestStatus_TextOnlySuccessHasNoURL(t *testing.T) {
	tasks := newFakeTaskRepo()
	svc := newTestService(tasks, nil, &fakeBackend{stream: &fakeStream{
		chunks: []*genai.Chunk{textChunk("only words")},
	}}, newFakeGateway())

	task, _, err := svc.Generate(context.Background(), GenerateParams{PromptText: "describe"})
	require.NoError(t, err)

	got, url, err := svc.Status(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSucceeded, got.Status)
	assert.Empty(t, url)
}
