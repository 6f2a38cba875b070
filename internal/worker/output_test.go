package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sdqueue/internal/models"
)

type recordingUploader struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (u *recordingUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)
	if u.fail {
		return "", errors.New("bucket unavailable")
	}
	return "mem://" + key, nil
}

func newTestSink(t *testing.T) *ResultSink {
	t.Helper()
	return &ResultSink{
		dir:    t.TempDir(),
		now:    func() time.Time { return fixedNow },
		logger: zerolog.Nop(),
	}
}

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 20), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSaveWritesImageAndDetails(t *testing.T) {
	sink := newTestSink(t)
	saved, err := sink.Save(context.Background(), models.GenerationResult{
		Image:     []byte("pixels"),
		Prompt:    "a lighthouse",
		ModelType: models.ModelAnime,
		ModelName: "anime.safetensors",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Base != "2024-05-01_10-30-00_generated_image" {
		t.Fatalf("unexpected base name %s", saved.Base)
	}
	img, _ := os.ReadFile(saved.ImagePath)
	if string(img) != "pixels" {
		t.Fatalf("image bytes = %q", img)
	}
	details, _ := os.ReadFile(saved.DetailsPath)
	if string(details) != "Prompt:a lighthouse\nModelType:Anime\nModelName:anime.safetensors" {
		t.Fatalf("details = %q", details)
	}
	if saved.ThumbnailPath != "" {
		t.Fatalf("thumbnails are disabled by default")
	}
}

func TestSaveSameSecondGetsSuffix(t *testing.T) {
	sink := newTestSink(t)
	res := models.GenerationResult{Image: []byte("x"), Prompt: "p", ModelType: models.ModelStandard, ModelName: "std"}

	first, err := sink.Save(context.Background(), res)
	if err != nil {
		t.Fatal(err)
	}
	second, err := sink.Save(context.Background(), res)
	if err != nil {
		t.Fatal(err)
	}
	if first.Base == second.Base {
		t.Fatalf("second save reused %s", first.Base)
	}
	if second.Base != first.Base+"_1" {
		t.Fatalf("unexpected suffix: %s", second.Base)
	}
}

func TestSaveSkipsNameWithExistingDetails(t *testing.T) {
	sink := newTestSink(t)
	orphan := filepath.Join(sink.dir, "2024-05-01_10-30-00_generated_image.txt")
	if err := os.WriteFile(orphan, []byte("older"), 0o644); err != nil {
		t.Fatal(err)
	}
	saved, err := sink.Save(context.Background(), models.GenerationResult{Image: []byte("x"), Prompt: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(saved.DetailsPath) == filepath.Base(orphan) {
		t.Fatalf("existing details file was overwritten")
	}
	if data, _ := os.ReadFile(orphan); string(data) != "older" {
		t.Fatalf("orphan details changed: %q", data)
	}
}

func TestSaveRejectsEmptyImage(t *testing.T) {
	sink := newTestSink(t)
	if _, err := sink.Save(context.Background(), models.GenerationResult{Prompt: "p"}); err == nil {
		t.Fatalf("expected error for empty image")
	}
}

func TestSaveWritesThumbnail(t *testing.T) {
	sink := newTestSink(t)
	sink.thumbWidth = 5

	saved, err := sink.Save(context.Background(), models.GenerationResult{Image: samplePNG(t, 20, 10), Prompt: "p"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ThumbnailPath == "" {
		t.Fatalf("expected thumbnail path")
	}
	f, err := os.Open(saved.ThumbnailPath)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if cfg.Width != 5 || cfg.Height != 2 {
		t.Fatalf("unexpected thumbnail size %dx%d", cfg.Width, cfg.Height)
	}
}

func TestSaveUndecodableImageStillPersists(t *testing.T) {
	sink := newTestSink(t)
	sink.thumbWidth = 64

	saved, err := sink.Save(context.Background(), models.GenerationResult{Image: []byte("not a png"), Prompt: "p"})
	if err != nil {
		t.Fatalf("thumbnail failure must not fail the save: %v", err)
	}
	if saved.ThumbnailPath != "" {
		t.Fatalf("no thumbnail expected for undecodable data")
	}
	if _, err := os.Stat(saved.ImagePath); err != nil {
		t.Fatalf("image missing: %v", err)
	}
}

func TestSaveMirrorsArtifacts(t *testing.T) {
	sink := newTestSink(t)
	up := &recordingUploader{}
	sink.mirror = up
	sink.mirrorPrefix = "/renders"

	if _, err := sink.Save(context.Background(), models.GenerationResult{Image: []byte("x"), Prompt: "p"}); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"renders/2024-05-01_10-30-00_generated_image.png",
		"renders/2024-05-01_10-30-00_generated_image.txt",
	}
	if len(up.keys) != len(want) {
		t.Fatalf("uploaded keys = %v", up.keys)
	}
	for i := range want {
		if up.keys[i] != want[i] {
			t.Fatalf("key %d = %s, want %s", i, up.keys[i], want[i])
		}
	}
}

func TestSaveMirrorFailureIsNotFatal(t *testing.T) {
	sink := newTestSink(t)
	sink.mirror = &recordingUploader{fail: true}

	saved, err := sink.Save(context.Background(), models.GenerationResult{Image: []byte("x"), Prompt: "p"})
	if err != nil {
		t.Fatalf("mirror failure must not fail the save: %v", err)
	}
	if _, err := os.Stat(saved.DetailsPath); err != nil {
		t.Fatalf("details missing: %v", err)
	}
}
