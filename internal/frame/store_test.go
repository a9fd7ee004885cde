package frame

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stackmem/stackmem/internal/db"
)

func setupTestDB(t *testing.T) (*db.DB, *Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, NewStore(database)
}

func TestStore_PushRoot(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	f, err := store.Push(ctx, "run-1", "", "implement feature", TypeTask)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if f.ID == "" {
		t.Error("expected non-empty frame ID")
	}
	if f.State != StateActive {
		t.Errorf("state: got %q, want active", f.State)
	}

	got, err := store.Get(ctx, f.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "implement feature" {
		t.Errorf("name: got %q", got.Name)
	}
	if got.RunID != "run-1" {
		t.Errorf("run: got %q", got.RunID)
	}
}

func TestStore_PushNested(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	root, _ := store.Push(ctx, "run-1", "", "root", TypeTask)
	child, err := store.Push(ctx, "run-1", root.ID, "child", TypeSubtask)
	if err != nil {
		t.Fatalf("Push child: %v", err)
	}
	if child.ParentID != root.ID {
		t.Errorf("parent: got %q, want %q", child.ParentID, root.ID)
	}
}

func TestStore_Push_InvalidParent(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.Push(ctx, "run-1", "no-such-frame", "child", TypeTask)
	if !errors.Is(err, ErrInvalidParent) {
		t.Errorf("expected ErrInvalidParent, got %v", err)
	}
}

func TestStore_Push_ClosedParent(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	root, _ := store.Push(ctx, "run-1", "", "root", TypeTask)
	if err := store.Close(ctx, root.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := store.Push(ctx, "run-1", root.ID, "child", TypeTask)
	if !errors.Is(err, ErrInvalidParent) {
		t.Errorf("expected ErrInvalidParent for closed parent, got %v", err)
	}
}

func TestStore_Push_CrossRunParent(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	root, _ := store.Push(ctx, "run-1", "", "root", TypeTask)
	_, err := store.Push(ctx, "run-2", root.ID, "child", TypeTask)
	if !errors.Is(err, ErrInvalidParent) {
		t.Errorf("expected ErrInvalidParent across runs, got %v", err)
	}
}

func TestStore_Close(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	f, _ := store.Push(ctx, "run-1", "", "work", TypeTask)
	if err := store.Close(ctx, f.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, _ := store.Get(ctx, f.ID)
	if got.State != StateClosed {
		t.Errorf("state: got %q, want closed", got.State)
	}
	if got.ClosedAt == nil {
		t.Error("expected closed_at to be set")
	}
}

func TestStore_Close_Twice(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	f, _ := store.Push(ctx, "run-1", "", "work", TypeTask)
	store.Close(ctx, f.ID)

	err := store.Close(ctx, f.ID)
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestStore_Close_NotFound(t *testing.T) {
	_, store := setupTestDB(t)

	err := store.Close(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Close_ChildrenOpen(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	root, _ := store.Push(ctx, "run-1", "", "root", TypeTask)
	child, _ := store.Push(ctx, "run-1", root.ID, "child", TypeSubtask)

	// Closing bottom-up is enforced: the parent cannot close first.
	err := store.Close(ctx, root.ID)
	if !errors.Is(err, ErrChildrenOpen) {
		t.Errorf("expected ErrChildrenOpen, got %v", err)
	}

	if err := store.Close(ctx, child.ID); err != nil {
		t.Fatalf("Close child: %v", err)
	}
	if err := store.Close(ctx, root.ID); err != nil {
		t.Fatalf("Close root after child: %v", err)
	}
}

func TestStore_ActivePath(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	root, _ := store.Push(ctx, "run-1", "", "root", TypeTask)
	mid, _ := store.Push(ctx, "run-1", root.ID, "mid", TypeSubtask)
	leaf, _ := store.Push(ctx, "run-1", mid.ID, "leaf", TypeSubtask)

	path, err := store.ActivePath(ctx, "run-1")
	if err != nil {
		t.Fatalf("ActivePath: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected path of 3, got %d", len(path))
	}
	if path[0].ID != root.ID || path[1].ID != mid.ID || path[2].ID != leaf.ID {
		t.Errorf("path order wrong: %s, %s, %s", path[0].Name, path[1].Name, path[2].Name)
	}
}

func TestStore_ActivePath_ShrinksOnClose(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	root, _ := store.Push(ctx, "run-1", "", "root", TypeTask)
	leaf, _ := store.Push(ctx, "run-1", root.ID, "leaf", TypeSubtask)
	store.Close(ctx, leaf.ID)

	path, _ := store.ActivePath(ctx, "run-1")
	if len(path) != 1 || path[0].ID != root.ID {
		t.Errorf("expected path of just root, got %d frames", len(path))
	}
}

func TestStore_ActivePath_Empty(t *testing.T) {
	_, store := setupTestDB(t)

	path, err := store.ActivePath(context.Background(), "quiet-run")
	if err != nil {
		t.Fatalf("ActivePath: %v", err)
	}
	if len(path) != 0 {
		t.Errorf("expected empty path, got %d", len(path))
	}
}

func TestStore_AppendInputOutput(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	f, _ := store.Push(ctx, "run-1", "", "work", TypeTask)
	if err := store.AppendInput(ctx, f.ID, "fix the parser"); err != nil {
		t.Fatalf("AppendInput: %v", err)
	}
	if err := store.AppendOutput(ctx, f.ID, "parser fixed"); err != nil {
		t.Fatalf("AppendOutput: %v", err)
	}

	got, _ := store.Get(ctx, f.ID)
	if len(got.Inputs) != 1 || got.Inputs[0] != "fix the parser" {
		t.Errorf("inputs: got %v", got.Inputs)
	}
	if len(got.Outputs) != 1 || got.Outputs[0] != "parser fixed" {
		t.Errorf("outputs: got %v", got.Outputs)
	}
}

func TestStore_Append_ClosedFrame(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	f, _ := store.Push(ctx, "run-1", "", "work", TypeTask)
	store.Close(ctx, f.ID)

	err := store.AppendInput(ctx, f.ID, "late input")
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestStore_SignalsFor(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	f, _ := store.Push(ctx, "run-1", "", "work", TypeTask)
	store.RecordToolEvent(ctx, ToolEvent{FrameID: f.ID, Tool: "edit", FilesAffected: 3, IsPermanent: true})
	store.RecordToolEvent(ctx, ToolEvent{FrameID: f.ID, Tool: "edit", FilesAffected: 2, RefCount: 1})
	store.RecordToolEvent(ctx, ToolEvent{FrameID: f.ID, Tool: "read", FilesAffected: 1})

	sig, err := store.SignalsFor(ctx, f.ID)
	if err != nil {
		t.Fatalf("SignalsFor: %v", err)
	}
	if sig.Tool != "edit" {
		t.Errorf("dominant tool: got %q, want edit", sig.Tool)
	}
	if sig.FilesAffected != 6 {
		t.Errorf("files: got %d, want 6", sig.FilesAffected)
	}
	if !sig.IsPermanent {
		t.Error("expected permanent")
	}
	if sig.RefCount != 1 {
		t.Errorf("refs: got %d, want 1", sig.RefCount)
	}
}

func TestStore_SubtreeAndSignals(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	root, _ := store.Push(ctx, "run-1", "", "root", TypeTask)
	child, _ := store.Push(ctx, "run-1", root.ID, "child", TypeSubtask)
	store.RecordToolEvent(ctx, ToolEvent{FrameID: root.ID, Tool: "bash", FilesAffected: 1})
	store.RecordToolEvent(ctx, ToolEvent{FrameID: child.ID, Tool: "edit", FilesAffected: 4, IsPermanent: true})

	sub, err := store.Subtree(ctx, root.ID)
	if err != nil {
		t.Fatalf("Subtree: %v", err)
	}
	if len(sub) != 2 || sub[0].ID != root.ID {
		t.Errorf("subtree: got %d frames, root first = %v", len(sub), sub[0].ID == root.ID)
	}

	sig, err := store.SubtreeSignals(ctx, root.ID)
	if err != nil {
		t.Fatalf("SubtreeSignals: %v", err)
	}
	if sig.FilesAffected != 5 {
		t.Errorf("files: got %d, want 5", sig.FilesAffected)
	}
	if !sig.IsPermanent {
		t.Error("expected permanent from child event")
	}
}

func TestStore_ClosedRoots(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	a, _ := store.Push(ctx, "run-1", "", "done", TypeTask)
	store.Close(ctx, a.ID)
	store.Push(ctx, "run-1", "", "still open", TypeTask)

	roots, err := store.ClosedRoots(ctx, "run-1")
	if err != nil {
		t.Fatalf("ClosedRoots: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != a.ID {
		t.Errorf("expected only the closed root, got %d", len(roots))
	}
}

func TestStore_DeleteSubtree(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	root, _ := store.Push(ctx, "run-1", "", "root", TypeTask)
	child, _ := store.Push(ctx, "run-1", root.ID, "child", TypeSubtask)
	store.Close(ctx, child.ID)
	store.Close(ctx, root.ID)

	if err := store.DeleteSubtree(ctx, root.ID); err != nil {
		t.Fatalf("DeleteSubtree: %v", err)
	}
	if _, err := store.Get(ctx, root.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("root should be gone, got %v", err)
	}
	if _, err := store.Get(ctx, child.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("child should be gone, got %v", err)
	}
}
