package queue

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"sdqueue/internal/fsutil"
	"sdqueue/internal/models"
)

const (
	promptPrefix    = "Prompt:"
	modelTypePrefix = "ModelType:"
	pendingExt      = ".txt"
	timestampLayout = "2006-01-02_15-04-05"
)

var (
	// ErrArchiveExists is returned when the archive already holds a file with the same name.
	ErrArchiveExists = errors.New("archive destination already exists")
	// ErrEmptyPrompt rejects prompts that are blank after newline flattening.
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrInvalidName rejects names that would escape the queue directory.
	ErrInvalidName = errors.New("invalid queue item name")
)

// Store is a directory of pending prompt files plus the archive they are moved to once processed.
type Store struct {
	queueDir   string
	archiveDir string
	now        func() time.Time
}

// NewStore creates both directories if needed.
func NewStore(queueDir, archiveDir string) (*Store, error) {
	if err := EnsureDirs(queueDir, archiveDir); err != nil {
		return nil, err
	}
	return &Store{queueDir: queueDir, archiveDir: archiveDir, now: time.Now}, nil
}

// EnsureDirs creates every directory in dirs.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			return errors.New("directory path is required")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// QueueDir returns the pending directory.
func (s *Store) QueueDir() string { return s.queueDir }

// ArchiveDir returns the archive directory.
func (s *Store) ArchiveDir() string { return s.archiveDir }

// Enqueue publishes a new prompt file and returns its name. The file only becomes visible under
// its final .txt name once fully written.
func (s *Store) Enqueue(ctx context.Context, prompt string, modelType models.ModelType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt = strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(prompt))
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("sd_prompt_%s_%s%s", s.now().Format(timestampLayout), suffix, pendingExt)
	if err := fsutil.WriteFile(filepath.Join(s.queueDir, name), Format(prompt, modelType)); err != nil {
		return "", err
	}
	return name, nil
}

// ListPending returns the names of queued .txt files in lexicographic order.
func (s *Store) ListPending() ([]string, error) {
	entries, err := os.ReadDir(s.queueDir)
	if err != nil {
		return nil, fmt.Errorf("read queue directory %s: %w", s.queueDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(name, pendingExt) && !strings.HasPrefix(name, ".") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read loads and parses a pending file.
func (s *Store) Read(name string) (models.QueueItem, error) {
	if err := validName(name); err != nil {
		return models.QueueItem{}, err
	}
	data, err := os.ReadFile(filepath.Join(s.queueDir, name))
	if err != nil {
		return models.QueueItem{}, fmt.Errorf("read queue item %s: %w", name, err)
	}
	return Parse(name, data), nil
}

// Archive moves a processed file into the archive directory. It never overwrites an existing archive entry.
func (s *Store) Archive(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	src := filepath.Join(s.queueDir, name)
	dst := filepath.Join(s.archiveDir, name)
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("archive %s: %w: %s", name, ErrArchiveExists, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("archive %s: stat destination: %w", name, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	return nil
}

// Format renders the on-disk representation of a queue item.
func Format(prompt string, modelType models.ModelType) []byte {
	return []byte(fmt.Sprintf("%s%s\n%s%s\n", promptPrefix, prompt, modelTypePrefix, modelType))
}

// Parse extracts the prompt and model type from file content. A Prompt: line replaces the whole
// content as the prompt; without one the raw content is the prompt, ModelType: line included.
func Parse(name string, content []byte) models.QueueItem {
	raw := string(content)
	item := models.QueueItem{Name: name, Prompt: raw, ModelType: models.ModelStandard}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, promptPrefix):
			item.Prompt = strings.TrimSpace(strings.TrimPrefix(line, promptPrefix))
		case strings.HasPrefix(line, modelTypePrefix):
			item.ModelType = models.ParseModelType(strings.TrimPrefix(line, modelTypePrefix))
		}
	}
	return item
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
