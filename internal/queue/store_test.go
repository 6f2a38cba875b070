package queue

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sdqueue/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	st, err := NewStore(filepath.Join(root, "queue"), filepath.Join(root, "archive"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return st
}

func TestEnqueueThenReadRoundTrip(t *testing.T) {
	st := newTestStore(t)
	st.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) }

	name, err := st.Enqueue(context.Background(), "a cat", models.ModelAnime)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.HasPrefix(name, "sd_prompt_2024-05-01_10-30-00_") || !strings.HasSuffix(name, ".txt") {
		t.Fatalf("unexpected name: %s", name)
	}

	item, err := st.Read(name)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if item.Prompt != "a cat" || item.ModelType != models.ModelAnime {
		t.Fatalf("round trip mismatch: %+v", item)
	}

	entries, err := os.ReadDir(st.QueueDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the published file, found %d entries", len(entries))
	}
}

func TestEnqueueRejectsEmptyPrompt(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.Enqueue(context.Background(), " \n ", models.ModelStandard); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestEnqueueFlattensMultilinePrompt(t *testing.T) {
	st := newTestStore(t)
	name, err := st.Enqueue(context.Background(), "red fox\nin snow", models.ModelRealism)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	item, err := st.Read(name)
	if err != nil {
		t.Fatal(err)
	}
	if item.Prompt != "red fox in snow" {
		t.Fatalf("unexpected prompt: %q", item.Prompt)
	}
}

func TestListPendingSkipsTempAndForeignFiles(t *testing.T) {
	st := newTestStore(t)
	write := func(name string) {
		if err := os.WriteFile(filepath.Join(st.QueueDir(), name), []byte("Prompt:x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("b.txt")
	write("a.txt")
	write(".sd_prompt-123.tmp")
	write("sd_prompt_2024.tmp")
	write("notes.md")
	if err := os.Mkdir(filepath.Join(st.QueueDir(), "dir.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	names, err := st.ListPending()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.txt" {
		t.Fatalf("unexpected pending list: %v", names)
	}
}

func TestArchivePreservesContent(t *testing.T) {
	st := newTestStore(t)
	content := []byte("Prompt:red fox in snow \nModelType:Realism")
	src := filepath.Join(st.QueueDir(), "sd_prompt_X.txt")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := st.Archive("sd_prompt_X.txt"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("queue file should be gone, stat err=%v", err)
	}
	got, err := os.ReadFile(filepath.Join(st.ArchiveDir(), "sd_prompt_X.txt"))
	if err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("archived content changed: %q", got)
	}
}

func TestArchiveRefusesToOverwrite(t *testing.T) {
	st := newTestStore(t)
	if err := os.WriteFile(filepath.Join(st.QueueDir(), "dup.txt"), []byte("Prompt:new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(st.ArchiveDir(), "dup.txt"), []byte("Prompt:old"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := st.Archive("dup.txt")
	if !errors.Is(err, ErrArchiveExists) {
		t.Fatalf("expected ErrArchiveExists, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(st.QueueDir(), "dup.txt")); err != nil {
		t.Fatalf("queue file must stay in place: %v", err)
	}
	old, _ := os.ReadFile(filepath.Join(st.ArchiveDir(), "dup.txt"))
	if string(old) != "Prompt:old" {
		t.Fatalf("archive entry was clobbered: %q", old)
	}
}

func TestArchiveMissingSourceFails(t *testing.T) {
	st := newTestStore(t)
	if err := st.Archive("missing.txt"); err == nil {
		t.Fatalf("expected error for missing source")
	}
}

func TestReadRejectsTraversal(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.Read("../escape.txt"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		name      string
		content   string
		prompt    string
		modelType models.ModelType
	}{
		{"labelled", "Prompt:a cat \nModelType:Anime", "a cat", models.ModelAnime},
		{"reordered", "ModelType:Realism\r\nPrompt: lighthouse\r\n", "lighthouse", models.ModelRealism},
		{"unknown model", "Prompt:x\nModelType:Cartoon", "x", models.ModelStandard},
		{"missing model", "Prompt:x\n", "x", models.ModelStandard},
		{"no prompt line keeps raw content", "castle at dusk\nModelType:Anime", "castle at dusk\nModelType:Anime", models.ModelAnime},
		{"other lines ignored", "# note\nPrompt:y\nextra", "y", models.ModelStandard},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := Parse("f.txt", []byte(tc.content))
			if item.Prompt != tc.prompt {
				t.Fatalf("prompt = %q, want %q", item.Prompt, tc.prompt)
			}
			if item.ModelType != tc.modelType {
				t.Fatalf("model type = %s, want %s", item.ModelType, tc.modelType)
			}
			if item.Name != "f.txt" {
				t.Fatalf("name not carried: %s", item.Name)
			}
		})
	}
}
