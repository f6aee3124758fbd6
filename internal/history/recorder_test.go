package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/inovacc/binderlaunch/internal/buildspec"
	"github.com/inovacc/binderlaunch/internal/database"
	"github.com/inovacc/binderlaunch/internal/progress"
	"github.com/inovacc/binderlaunch/internal/session"
)

func setupStores(t *testing.T) (*database.Storage, *database.Database) {
	t.Helper()

	dir := t.TempDir()

	storage, err := database.NewStorage(filepath.Join(dir, "history.bolt"))
	if err != nil {
		t.Fatal(err)
	}

	archive, err := database.NewDatabase(context.Background(), filepath.Join(dir, "logs.db"))
	if err != nil {
		_ = storage.Close()
		t.Fatal(err)
	}

	t.Cleanup(func() {
		_ = storage.Close()
		_ = archive.Close()
	})

	return storage, archive
}

func snapshot(id string, state progress.State) session.Snapshot {
	spec, _ := buildspec.New("gh/org/repo/HEAD", buildspec.RuntimeParams{URLPath: "lab"})

	return session.Snapshot{
		ID:        id,
		Spec:      spec,
		State:     state,
		Launching: !state.Terminal(),
		Started:   time.Now(),
	}
}

func TestStripToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"https://hub.example/user/x/lab?token=abc", "https://hub.example/user/x/lab"},
		{"https://hub.example/user/x/?reset=&token=abc", "https://hub.example/user/x/?reset="},
		{"https://hub.example/user/x/", "https://hub.example/user/x/"},
	}

	for _, tt := range tests {
		if got := StripToken(tt.in); got != tt.want {
			t.Errorf("StripToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecorderTracksSession(t *testing.T) {
	storage, archive := setupStores(t)
	rec := NewRecorder(storage, archive, "https://mybinder.org/", nil)

	rec.Observe(snapshot("sess-1", progress.Waiting))
	rec.Append("Step 1\n")
	rec.Append("Step 2\n")

	done := snapshot("sess-1", progress.Success)
	done.RedirectURL = "https://hub.example/user/x/lab?token=secret"
	done.ImageName = "registry/repo:abc"
	done.Finished = done.Started.Add(time.Second)
	rec.Observe(done)

	launch, err := storage.GetLaunch("sess-1")
	if err != nil {
		t.Fatalf("GetLaunch failed: %v", err)
	}

	if launch.State != "success" {
		t.Errorf("Expected success, got %s", launch.State)
	}

	if launch.ServerURL != "https://hub.example/user/x/lab" {
		t.Errorf("Token leaked into history: %s", launch.ServerURL)
	}

	if launch.BaseURL != "https://mybinder.org/" || launch.URLPath != "lab" || launch.ImageName != "registry/repo:abc" {
		t.Errorf("Unexpected launch record: %+v", launch)
	}

	lines, err := archive.Queries().ListLogLines(context.Background(), "sess-1")
	if err != nil {
		t.Fatal(err)
	}

	if len(lines) != 2 || lines[0].Message != "Step 1\n" || lines[1].Seq != 2 {
		t.Errorf("Unexpected archived lines: %+v", lines)
	}
}

func TestRecorderNewSessionRestartsSequence(t *testing.T) {
	storage, archive := setupStores(t)
	rec := NewRecorder(storage, archive, "", nil)

	rec.Observe(snapshot("a", progress.Waiting))
	rec.Append("a1")

	rec.Observe(snapshot("b", progress.Waiting))
	rec.Append("b1")
	rec.Flush()

	lines, err := archive.Queries().ListLogLines(context.Background(), "b")
	if err != nil {
		t.Fatal(err)
	}

	if len(lines) != 1 || lines[0].Seq != 1 {
		t.Errorf("Expected fresh sequence for new session, got %+v", lines)
	}
}

func TestRecorderDropsTextWithoutSession(t *testing.T) {
	_, archive := setupStores(t)
	rec := NewRecorder(nil, archive, "", nil)

	rec.Append("orphan")

	n, err := archive.Queries().CountLogLines(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}

	if n != 0 {
		t.Errorf("Expected no archived lines, got %d", n)
	}
}

func TestRecorderKeepsError(t *testing.T) {
	storage, _ := setupStores(t)
	rec := NewRecorder(storage, nil, "", nil)

	failed := snapshot("f", progress.Failed)
	failed.Err = session.ErrBuildFailed
	rec.Observe(failed)

	launch, err := storage.GetLaunch("f")
	if err != nil {
		t.Fatal(err)
	}

	if launch.Error != session.ErrBuildFailed.Error() {
		t.Errorf("Expected error to be stored, got %q", launch.Error)
	}
}

func TestForgetAndClear(t *testing.T) {
	storage, archive := setupStores(t)
	rec := NewRecorder(storage, archive, "", nil)
	ctx := context.Background()

	for _, id := range []string{"x", "y"} {
		rec.Observe(snapshot(id, progress.Waiting))
		rec.Append("line")
	}

	rec.Flush()

	if n, _ := archive.Queries().CountLogLines(ctx, "y"); n != 1 {
		t.Fatalf("Expected y logs to be archived, got %d", n)
	}

	if err := Forget(ctx, storage, archive, "x"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}

	if _, err := storage.GetLaunch("x"); !errors.Is(err, database.ErrLaunchNotFound) {
		t.Errorf("Expected x to be gone, got %v", err)
	}

	n, _ := archive.Queries().CountLogLines(ctx, "x")
	if n != 0 {
		t.Errorf("Expected x logs to be gone, got %d", n)
	}

	if err := Clear(ctx, storage, archive); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	count, _ := storage.CountLaunches()
	if count != 0 {
		t.Errorf("Expected empty history, got %d", count)
	}

	n, _ = archive.Queries().CountLogLines(ctx, "y")
	if n != 0 {
		t.Errorf("Expected y logs to be gone, got %d", n)
	}
}

func TestRecorderBuffersLogLines(t *testing.T) {
	storage, archive := setupStores(t)
	rec := NewRecorder(storage, archive, "", nil)
	ctx := context.Background()

	building := snapshot("buf", progress.Building)
	rec.Observe(building)

	for i := 0; i < flushLines-1; i++ {
		rec.Append("line\n")
		// the controller sends a snapshot for every event, even when nothing stored changes
		rec.Observe(building)
	}

	n, err := archive.Queries().CountLogLines(ctx, "buf")
	if err != nil {
		t.Fatal(err)
	}

	if n != 0 {
		t.Fatalf("Expected lines to stay buffered while the record is unchanged, got %d", n)
	}

	rec.Append("line\n")

	if n, _ = archive.Queries().CountLogLines(ctx, "buf"); n != flushLines {
		t.Fatalf("Expected a full buffer to be written, got %d", n)
	}

	rec.Append("tail\n")

	done := building
	done.State = progress.Success
	done.Finished = done.Started.Add(time.Second)
	rec.Observe(done)

	if n, _ = archive.Queries().CountLogLines(ctx, "buf"); n != flushLines+1 {
		t.Errorf("Expected the finish snapshot to flush, got %d", n)
	}
}

func TestRecorderSkipsUnchangedRecords(t *testing.T) {
	storage, _ := setupStores(t)
	rec := NewRecorder(storage, nil, "", nil)

	snap := snapshot("same", progress.Building)
	rec.Observe(snap)

	if err := storage.DeleteLaunch("same"); err != nil {
		t.Fatal(err)
	}

	// same stored fields, only the launching flag differs
	snap.Launching = !snap.Launching
	rec.Observe(snap)

	if _, err := storage.GetLaunch("same"); !errors.Is(err, database.ErrLaunchNotFound) {
		t.Fatalf("Expected no write for an unchanged record, got %v", err)
	}

	snap.State = progress.Pushing
	rec.Observe(snap)

	launch, err := storage.GetLaunch("same")
	if err != nil {
		t.Fatalf("Expected a write after a state change: %v", err)
	}

	if launch.State != "pushing" {
		t.Errorf("Expected pushing, got %s", launch.State)
	}
}
