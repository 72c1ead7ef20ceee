package unitycatalog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/de-tools/dino/pkg/models/domain"
)

type apiCall struct {
	Method string
	Path   string
	Query  map[string]any
	Body   any
}

func (c apiCall) key() string {
	return c.Method + " " + c.Path
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string]any
	errs      map[string]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		responses: map[string]any{},
		errs:      map[string]error{},
	}
}

func (f *fakeAPI) Do(_ context.Context, method, path string, query map[string]any, request, response any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := apiCall{Method: method, Path: path, Query: query, Body: request}
	f.calls = append(f.calls, c)

	if err, ok := f.errs[c.key()]; ok {
		return err
	}
	if response == nil {
		return nil
	}
	body, ok := f.responses[c.key()]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, response)
}

func (f *fakeAPI) called(key string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []apiCall
	for _, c := range f.calls {
		if c.key() == key {
			out = append(out, c)
		}
	}
	return out
}

// mutations returns every non-GET call key in order.
func (f *fakeAPI) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.calls {
		if c.Method != "GET" {
			out = append(out, c.key())
		}
	}
	return out
}

type memoryCheckpoints struct {
	mu    sync.Mutex
	steps map[string]map[string]domain.Checkpoint
}

func newMemoryCheckpoints() *memoryCheckpoints {
	return &memoryCheckpoints{steps: map[string]map[string]domain.Checkpoint{}}
}

func (m *memoryCheckpoints) Save(_ context.Context, cp domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.steps[cp.Environment] == nil {
		m.steps[cp.Environment] = map[string]domain.Checkpoint{}
	}
	m.steps[cp.Environment][cp.Step] = cp
	return nil
}

func (m *memoryCheckpoints) Load(_ context.Context, env string) (map[string]domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]domain.Checkpoint{}
	for k, v := range m.steps[env] {
		out[k] = v
	}
	return out, nil
}

func (m *memoryCheckpoints) DeleteStep(_ context.Context, env, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.steps[env], step)
	return nil
}

func (m *memoryCheckpoints) Delete(_ context.Context, env string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.steps, env)
	return nil
}

func testOptions() Options {
	return Options{
		MetastoreDeadline: 50 * time.Millisecond,
		WorkspaceDeadline: 50 * time.Millisecond,
		PollInterval:      time.Millisecond,
		Now:               func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}
