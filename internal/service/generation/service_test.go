package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixmint/genapi/internal/genai"
	"github.com/pixmint/genapi/internal/model"
	taskrepo "github.com/pixmint/genapi/internal/repository/task"
	"github.com/pixmint/genapi/internal/storage"
)

// fakeTaskRepo is an in-memory task store used by the service tests.
type fakeTaskRepo struct {
	mu            sync.Mutex
	tasks         map[uuid.UUID]*model.Task
	outputs       []model.Output
	finalizeCalls int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uuid.UUID]*model.Task)}
}

func (f *fakeTaskRepo) Create(_ context.Context, t model.Task) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	f.tasks[t.ID] = &t
	return t.ID, nil
}

func (f *fakeTaskRepo) Finalize(_ context.Context, id uuid.UUID, status model.TaskStatus, outputText, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.finalizeCalls++
	t, ok := f.tasks[id]
	if !ok {
		return taskrepo.ErrTaskNotFound
	}
	if t.Status != model.TaskStatusRunning {
		return taskrepo.ErrNotRunning
	}

	now := time.Now()
	t.Status = status
	t.OutputText = outputText
	t.Error = errMsg
	t.CompletedAt = &now
	return nil
}

func (f *fakeTaskRepo) UpdateParams(_ context.Context, id uuid.UUID, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[id]
	if !ok {
		return taskrepo.ErrTaskNotFound
	}
	t.Params = params
	return nil
}

func (f *fakeTaskRepo) GetByID(_ context.Context, id uuid.UUID) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[id]
	if !ok {
		return model.Task{}, taskrepo.ErrTaskNotFound
	}
	return *t, nil
}

func (f *fakeTaskRepo) AddOutput(_ context.Context, o model.Output) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	f.outputs = append(f.outputs, o)
	return o.ID, nil
}

func (f *fakeTaskRepo) ListOutputs(_ context.Context, taskID uuid.UUID) ([]model.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.Output
	for _, o := range f.outputs {
		if o.TaskID == taskID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeTaskRepo) GetPrimaryOutput(_ context.Context, taskID uuid.UUID) (model.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, o := range f.outputs {
		if o.TaskID == taskID && o.Index == 0 {
			return o, nil
		}
	}
	return model.Output{}, taskrepo.ErrOutputNotFound
}

func (f *fakeTaskRepo) task(id uuid.UUID) model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.tasks[id]
}

// fakeCatalog serves styles and prompt templates from maps.
type fakeCatalog struct {
	styles  map[string]model.Style
	prompts map[uuid.UUID]model.PromptTemplate
}

func (f *fakeCatalog) GetStyleBySlug(_ context.Context, slug string) (model.Style, bool, error) {
	s, ok := f.styles[slug]
	return s, ok, nil
}

func (f *fakeCatalog) GetPromptByID(_ context.Context, id uuid.UUID) (model.PromptTemplate, bool, error) {
	p, ok := f.prompts[id]
	return p, ok, nil
}

var errEOF = io.EOF

// fakeStream replays prepared chunks, then an optional error, then EOF.
type fakeStream struct {
	chunks []*genai.Chunk
	err    error
	pos    int
	closed bool
}

func (f *fakeStream) Recv() (*genai.Chunk, error) {
	if f.pos < len(f.chunks) {
		c := f.chunks[f.pos]
		f.pos++
		return c, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return nil, errEOF
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

// fakeBackend records the parts it was invoked with.
type fakeBackend struct {
	stream  *fakeStream
	openErr error
	parts   []genai.Part
}

func (f *fakeBackend) StreamGenerate(_ context.Context, parts []genai.Part) (genai.Stream, error) {
	f.parts = parts
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

// fakeGateway records uploads and resolves deterministic URLs.
type fakeGateway struct {
	mu        sync.Mutex
	uploads   []string
	uploadErr error
	objects   map[string][]byte
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: make(map[string][]byte)}
}

func (f *fakeGateway) Upload(_ context.Context, bucket, path string, data []byte, _ string, _ bool) (storage.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uploadErr != nil {
		return storage.UploadResult{}, f.uploadErr
	}
	f.uploads = append(f.uploads, path)
	f.objects[bucket+"/"+path] = data
	return storage.UploadResult{Path: path, PublicURL: "https://cdn.test/" + path}, nil
}

func (f *fakeGateway) ResolveURL(_ context.Context, bucket, path string, expiry time.Duration) (string, error) {
	if bucket == storage.ExternalURLBucket {
		return path, nil
	}
	return fmt.Sprintf("https://signed.test/%s/%s?ttl=%d", bucket, path, int(expiry.Seconds())), nil
}

func (f *fakeGateway) FetchBase64(_ context.Context, bucket, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[bucket+"/"+path]
	if !ok {
		return "", errors.New("object not found")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func inlineChunk(mime string, data []byte) *genai.Chunk {
	return &genai.Chunk{Candidates: []genai.Candidate{{
		Content: genai.Content{Parts: []genai.Part{{
			InlineData: &genai.Blob{MIMEType: mime, Data: base64.StdEncoding.EncodeToString(data)},
		}}},
	}}}
}

func textChunk(text string) *genai.Chunk {
	return &genai.Chunk{Text: text}
}

func externalChunk(url string) *genai.Chunk {
	return &genai.Chunk{Candidates: []genai.Candidate{{
		Content: genai.Content{Parts: []genai.Part{{
			FileData: &genai.FileData{FileURI: url},
		}}},
	}}}
}

func newTestService(tasks *fakeTaskRepo, catalog *fakeCatalog, b *fakeBackend, gw *fakeGateway) *Service {
	if catalog == nil {
		catalog = &fakeCatalog{}
	}
	return NewService(tasks, catalog, b, gw, Options{
		Bucket:         "generated",
		InlineMaxBytes: 800_000,
		URLTTL:         300 * time.Second,
	})
}
