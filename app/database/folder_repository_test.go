package database

import (
	"testing"
)

func TestSubtreeFolderIDs(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	folders := NewFolderRepository(db)

	parent, err := folders.CreateFolder(src.ID, 0, "Parent")
	if err != nil {
		t.Fatalf("Failed to create parent folder: %v", err)
	}
	child, err := folders.CreateFolder(src.ID, parent.ID, "Child")
	if err != nil {
		t.Fatalf("Failed to create child folder: %v", err)
	}
	grandchild, err := folders.CreateFolder(src.ID, child.ID, "Grandchild")
	if err != nil {
		t.Fatalf("Failed to create grandchild folder: %v", err)
	}
	if _, err := folders.CreateFolder(src.ID, 0, "Sibling"); err != nil {
		t.Fatalf("Failed to create sibling folder: %v", err)
	}

	ids, err := folders.SubtreeFolderIDs(src.ID, parent.ID)
	if err != nil {
		t.Fatalf("Failed to get subtree: %v", err)
	}

	want := map[int64]bool{parent.ID: true, child.ID: true, grandchild.ID: true}
	if len(ids) != len(want) {
		t.Fatalf("Expected %d subtree folders, got %d (%v)", len(want), len(ids), ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("Unexpected folder %d in subtree", id)
		}
	}
}

func TestSubtreeFolderIDs_Root(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	folders := NewFolderRepository(db)

	a, err := folders.CreateFolder(src.ID, 0, "A")
	if err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}
	b, err := folders.CreateFolder(src.ID, a.ID, "B")
	if err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}

	ids, err := folders.SubtreeFolderIDs(src.ID, 0)
	if err != nil {
		t.Fatalf("Failed to get root subtree: %v", err)
	}

	found := map[int64]bool{}
	for _, id := range ids {
		if id == 0 {
			t.Error("Root sentinel must not appear in subtree IDs")
		}
		found[id] = true
	}
	if !found[a.ID] || !found[b.ID] {
		t.Errorf("Expected all folders in root subtree, got %v", ids)
	}
}

func TestResequenceFolders(t *testing.T) {
	db := newTestDB(t)
	src := createTestSource(t, db)
	folders := NewFolderRepository(db)

	var created []*Folder
	for _, title := range []string{"A", "B", "C"} {
		f, err := folders.CreateFolder(src.ID, 0, title)
		if err != nil {
			t.Fatalf("Failed to create folder %s: %v", title, err)
		}
		created = append(created, f)
	}

	// Collapse the gaps so resequencing has work to do.
	if err := folders.SetFolderSortOrder(created[1].ID, created[0].SortOrder); err != nil {
		t.Fatalf("Failed to squash sort order: %v", err)
	}

	remap, err := folders.ResequenceFolders(src.ID, 0)
	if err != nil {
		t.Fatalf("Failed to resequence folders: %v", err)
	}
	if len(remap) == 0 {
		t.Fatal("Expected at least one changed folder in remap")
	}

	// After resequencing, siblings sit on a dense step-10 grid.
	all, err := folders.GetChildFolders(src.ID, 0)
	if err != nil {
		t.Fatalf("Failed to get folders: %v", err)
	}
	for i, f := range all {
		wantOrder := (i + 1) * SortOrderStep
		if f.SortOrder != wantOrder {
			t.Errorf("Folder %q: expected sort order %d, got %d", f.Title, wantOrder, f.SortOrder)
		}
	}

	// Only moved folders appear in the remap.
	for id, order := range remap {
		for _, f := range all {
			if f.ID == id && f.SortOrder != order {
				t.Errorf("Remap for folder %d says %d but row has %d", id, order, f.SortOrder)
			}
		}
	}
}
