package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/docent-ai/docent/internal/timeline"
)

// fakeThreadBackend serves scripted threads and records calls.
type fakeThreadBackend struct {
	mu        sync.Mutex
	threads   map[string]Thread
	fetchErr  error
	createErr error
	deleteErr error
	listErr   error
	deleted   []string
	gotUser   string
	gotName   string
}

func (f *fakeThreadBackend) FetchThread(ctx context.Context, threadID string) (Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return Thread{}, f.fetchErr
	}
	th, ok := f.threads[threadID]
	if !ok {
		return Thread{}, errors.New("missing scripted thread " + threadID)
	}
	return th, nil
}

func (f *fakeThreadBackend) ListThreads(ctx context.Context, userID string) ([]Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotUser = userID
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []Thread
	for _, th := range f.threads {
		out = append(out, th)
	}
	return out, nil
}

func (f *fakeThreadBackend) CreateThread(ctx context.Context, userID, name string) (Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotUser = userID
	f.gotName = name
	if f.createErr != nil {
		return Thread{}, f.createErr
	}
	th := Thread{ID: uuid.NewString(), UserID: userID, Name: name}
	if f.threads == nil {
		f.threads = map[string]Thread{}
	}
	f.threads[th.ID] = th
	return th, nil
}

func (f *fakeThreadBackend) DeleteThread(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, threadID)
	delete(f.threads, threadID)
	return nil
}

// newTestCoordinator redirects state files into a temp home and wires a
// controller over scripted backends.
func newTestCoordinator(t *testing.T, threads *fakeThreadBackend) (*Coordinator, *Controller) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	ctrl := newTestController(t, &fakeChatBackend{})
	coord, err := NewCoordinator(threads, ctrl, nil)
	if err != nil {
		t.Fatalf("NewCoordinator() error: %v", err)
	}
	return coord, ctrl
}

func storedThread(t *testing.T, values string) Thread {
	t.Helper()
	return Thread{ID: uuid.NewString(), UserID: "user-1", Values: json.RawMessage(values)}
}

func TestSwitchTo_PersistsThreadIDFirst(t *testing.T) {
	coord, _ := newTestCoordinator(t, &fakeThreadBackend{})

	// Malformed values: the switch itself fails, but the thread id must
	// already be persisted, the way a deep link lands before the page loads.
	th := storedThread(t, `{"router":{"type":"docs","logic":""}}`)

	err := coord.SwitchTo(th)
	if !errors.Is(err, timeline.ErrMalformedSnapshot) {
		t.Fatalf("SwitchTo(malformed) error = %v, want ErrMalformedSnapshot", err)
	}

	persisted, err := LoadCurrentThreadID()
	if err != nil {
		t.Fatalf("LoadCurrentThreadID() error: %v", err)
	}
	if persisted != th.ID {
		t.Errorf("persisted thread = %q, want %q even though the switch failed", persisted, th.ID)
	}
}

func TestSwitchTo_NoValuesYieldsEmptyTimeline(t *testing.T) {
	coord, ctrl := newTestCoordinator(t, &fakeThreadBackend{})
	ctrl.ReplaceTimeline("", []timeline.Message{timeline.NewHuman("old")})

	th := Thread{ID: uuid.NewString()}
	if err := coord.SwitchTo(th); err != nil {
		t.Fatalf("SwitchTo() error: %v", err)
	}

	if got := ctrl.Messages(); len(got) != 0 {
		t.Errorf("timeline has %d messages, want empty", len(got))
	}
	if ctrl.CurrentThread() != th.ID {
		t.Errorf("CurrentThread() = %q, want %q", ctrl.CurrentThread(), th.ID)
	}
}

func TestSwitchTo_ReconstructsStoredSnapshot(t *testing.T) {
	coord, ctrl := newTestCoordinator(t, &fakeThreadBackend{})
	ctrl.ReplaceTimeline("", []timeline.Message{timeline.NewHuman("stale"), timeline.NewAssistant("stale")})

	th := storedThread(t, `{
		"messages": [
			{"id":"m1","type":"human","content":"What is a NavigationAgent?"},
			{"id":"m2","type":"ai","content":"It steers bodies along paths."}
		],
		"router": {"type":"docs","logic":"API question"},
		"documents": [{"page_content":"NavigationAgent2D...","metadata":{"source":"godot"}}]
	}`)

	if err := coord.SwitchTo(th); err != nil {
		t.Fatalf("SwitchTo() error: %v", err)
	}

	got := ctrl.Messages()
	wantRoles := []timeline.Role{
		timeline.RoleHuman,
		timeline.RoleMarker, // progress
		timeline.RoleMarker, // router
		timeline.RoleMarker, // selected-documents
		timeline.RoleMarker, // answer-header
		timeline.RoleAssistant,
	}
	if len(got) != len(wantRoles) {
		t.Fatalf("timeline has %d entries, want %d: %+v", len(got), len(wantRoles), got)
	}
	for i, want := range wantRoles {
		if got[i].Role != want {
			t.Errorf("entry[%d].Role = %q, want %q", i, got[i].Role, want)
		}
	}
	if got[2].MarkerKind != timeline.MarkerRouter {
		t.Errorf("entry[2] kind = %q, want router", got[2].MarkerKind)
	}
	if got[5].Content != "It steers bodies along paths." {
		t.Errorf("assistant content = %q", got[5].Content)
	}
	if got[0].Content == "stale" {
		t.Error("old timeline survived a wholesale replacement")
	}
}

func TestSwitchByID_FetchFailureKeepsTimeline(t *testing.T) {
	threads := &fakeThreadBackend{fetchErr: errors.New("backend unavailable: status 502")}
	coord, ctrl := newTestCoordinator(t, threads)

	prior := []timeline.Message{timeline.NewHuman("keep me")}
	ctrl.ReplaceTimeline("", prior)
	drainEvents(ctrl)

	id := uuid.NewString()
	if err := coord.SwitchByID(context.Background(), id); err == nil {
		t.Fatal("SwitchByID() expected error")
	}

	if got := ctrl.Messages(); len(got) != 1 || got[0].Content != "keep me" {
		t.Errorf("timeline = %+v, want untouched prior content", got)
	}
	if notices := drainEvents(ctrl); len(notices) != 1 {
		t.Errorf("got %d notifications, want 1", len(notices))
	}

	persisted, _ := LoadCurrentThreadID()
	if persisted != id {
		t.Errorf("persisted thread = %q, want %q despite fetch failure", persisted, id)
	}
}

func TestRestore_ReopensPersistedThread(t *testing.T) {
	th := Thread{}
	threads := &fakeThreadBackend{}
	coord, ctrl := newTestCoordinator(t, threads)

	th = storedThread(t, `{"messages":[{"type":"human","content":"Q"},{"type":"ai","content":"A"}]}`)
	threads.threads = map[string]Thread{th.ID: th}
	if err := SaveCurrentThreadID(th.ID); err != nil {
		t.Fatalf("SaveCurrentThreadID() error: %v", err)
	}

	restored, err := coord.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if restored != th.ID {
		t.Errorf("Restore() = %q, want %q", restored, th.ID)
	}
	if got := ctrl.Messages(); len(got) == 0 {
		t.Error("Restore() left the timeline empty")
	}
}

func TestRestore_NothingPersisted(t *testing.T) {
	coord, _ := newTestCoordinator(t, &fakeThreadBackend{})

	restored, err := coord.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if restored != "" {
		t.Errorf("Restore() = %q, want empty", restored)
	}
}

func TestNewConversation_Detaches(t *testing.T) {
	coord, ctrl := newTestCoordinator(t, &fakeThreadBackend{})

	th := Thread{ID: uuid.NewString()}
	if err := coord.SwitchTo(th); err != nil {
		t.Fatalf("SwitchTo() error: %v", err)
	}

	coord.NewConversation()

	if ctrl.CurrentThread() != "" {
		t.Errorf("CurrentThread() = %q, want empty", ctrl.CurrentThread())
	}
	if persisted, _ := LoadCurrentThreadID(); persisted != "" {
		t.Errorf("persisted thread = %q, want cleared", persisted)
	}
}

func TestStartThread_CreatesAndSwitches(t *testing.T) {
	threads := &fakeThreadBackend{}
	coord, ctrl := newTestCoordinator(t, threads)

	th, err := coord.StartThread(context.Background(), "voxel terrain")
	if err != nil {
		t.Fatalf("StartThread() error: %v", err)
	}
	if threads.gotUser != "user-1" || threads.gotName != "voxel terrain" {
		t.Errorf("CreateThread got user=%q name=%q", threads.gotUser, threads.gotName)
	}
	if ctrl.CurrentThread() != th.ID {
		t.Errorf("CurrentThread() = %q, want %q", ctrl.CurrentThread(), th.ID)
	}
	if got := ctrl.Messages(); len(got) != 0 {
		t.Errorf("fresh thread timeline has %d entries, want 0", len(got))
	}
}

func TestDeleteThread_CurrentDetaches(t *testing.T) {
	threads := &fakeThreadBackend{}
	coord, ctrl := newTestCoordinator(t, threads)

	th, err := coord.StartThread(context.Background(), "temp")
	if err != nil {
		t.Fatalf("StartThread() error: %v", err)
	}
	if err := coord.DeleteThread(context.Background(), th.ID); err != nil {
		t.Fatalf("DeleteThread() error: %v", err)
	}
	if len(threads.deleted) != 1 || threads.deleted[0] != th.ID {
		t.Errorf("deleted = %v, want [%s]", threads.deleted, th.ID)
	}
	if ctrl.CurrentThread() != "" {
		t.Errorf("CurrentThread() = %q after deleting it, want empty", ctrl.CurrentThread())
	}
}

func TestList_SurfacesFailureAsNotification(t *testing.T) {
	threads := &fakeThreadBackend{listErr: errors.New("dial tcp: connection refused")}
	coord, ctrl := newTestCoordinator(t, threads)
	drainEvents(ctrl)

	if _, err := coord.List(context.Background()); err == nil {
		t.Fatal("List() expected error")
	}
	if threads.gotUser != "user-1" {
		t.Errorf("List passed user %q, want user-1", threads.gotUser)
	}
	if notices := drainEvents(ctrl); len(notices) != 1 {
		t.Errorf("got %d notifications, want 1", len(notices))
	}
}
