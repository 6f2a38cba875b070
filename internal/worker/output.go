package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"sdqueue/internal/config"
	"sdqueue/internal/fsutil"
	"sdqueue/internal/models"
)

const (
	outputTimeLayout = "2006-01-02_15-04-05"
	outputSuffix     = "_generated_image"
	maxNameAttempts  = 1000
)

type artifactUploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// ResultSink persists generated images and their details files.
type ResultSink struct {
	dir          string
	thumbWidth   int
	mirror       artifactUploader
	mirrorPrefix string
	now          func() time.Time
	logger       zerolog.Logger
}

// SavedResult lists the files written for one generation.
type SavedResult struct {
	Base          string
	ImagePath     string
	DetailsPath   string
	ThumbnailPath string
}

// NewResultSink prepares the output directory and, when a bucket is configured, an S3 mirror.
func NewResultSink(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*ResultSink, error) {
	dir := cfg.OutputDir
	if dir == "" {
		dir = "./outputs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	sink := &ResultSink{
		dir:          dir,
		thumbWidth:   cfg.OutputThumbnailWidth,
		mirrorPrefix: cfg.OutputS3Prefix,
		now:          time.Now,
		logger:       logger,
	}
	if cfg.OutputS3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sink.mirror = &s3Uploader{client: client, bucket: cfg.OutputS3Bucket}
	}
	return sink, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.OutputS3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.OutputS3PathStyle
		if cfg.OutputS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.OutputS3Endpoint)
		}
	}), nil
}

// Save writes <ts>_generated_image.png and the matching .txt. Names taken within the same second
// get a numeric suffix. Thumbnail and mirror failures are logged, never returned.
func (s *ResultSink) Save(ctx context.Context, res models.GenerationResult) (SavedResult, error) {
	if len(res.Image) == 0 {
		return SavedResult{}, errors.New("result has no image data")
	}
	stamp := s.now().Format(outputTimeLayout)

	var saved SavedResult
	for n := 0; ; n++ {
		if n >= maxNameAttempts {
			return SavedResult{}, fmt.Errorf("no free output name for %s", stamp)
		}
		base := stamp + outputSuffix
		if n > 0 {
			base = fmt.Sprintf("%s_%d", base, n)
		}
		imagePath := filepath.Join(s.dir, base+".png")
		detailsPath := filepath.Join(s.dir, base+".txt")
		if _, err := os.Lstat(detailsPath); err == nil {
			continue
		}
		f, err := os.OpenFile(imagePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return SavedResult{}, fmt.Errorf("create image file: %w", err)
		}
		if _, err := f.Write(res.Image); err != nil {
			_ = f.Close()
			_ = os.Remove(imagePath)
			return SavedResult{}, fmt.Errorf("write image file: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(imagePath)
			return SavedResult{}, fmt.Errorf("close image file: %w", err)
		}
		saved = SavedResult{Base: base, ImagePath: imagePath, DetailsPath: detailsPath}
		break
	}

	details := formatDetails(res)
	if err := fsutil.WriteFile(saved.DetailsPath, details); err != nil {
		return SavedResult{}, fmt.Errorf("write details file: %w", err)
	}

	if s.thumbWidth > 0 {
		thumbPath := filepath.Join(s.dir, "thumbs", saved.Base+".png")
		if err := writeThumbnail(res.Image, thumbPath, s.thumbWidth); err != nil {
			s.logger.Warn().Err(err).Str("image", saved.Base).Msg("thumbnail skipped")
		} else {
			saved.ThumbnailPath = thumbPath
		}
	}

	if s.mirror != nil {
		s.mirrorArtifacts(ctx, saved, res.Image, details)
	}
	return saved, nil
}

func (s *ResultSink) mirrorArtifacts(ctx context.Context, saved SavedResult, imageData, details []byte) {
	prefix := strings.TrimLeft(s.mirrorPrefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for _, a := range []struct {
		key         string
		body        []byte
		contentType string
	}{
		{prefix + saved.Base + ".png", imageData, "image/png"},
		{prefix + saved.Base + ".txt", details, "text/plain; charset=utf-8"},
	} {
		location, err := s.mirror.Upload(ctx, a.key, a.body, a.contentType)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", a.key).Msg("mirror upload failed")
			continue
		}
		s.logger.Debug().Str("location", location).Msg("mirrored artifact")
	}
}

func formatDetails(res models.GenerationResult) []byte {
	return []byte(fmt.Sprintf("Prompt:%s\nModelType:%s\nModelName:%s", res.Prompt, res.ModelType, res.ModelName))
}

func writeThumbnail(data []byte, path string, width int) error {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return errors.New("invalid image dimensions")
	}
	height := int(float64(bounds.Dy()) * float64(width) / float64(bounds.Dx()))
	if height == 0 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, dst, imaging.PNG); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}
	return fsutil.WriteFile(path, buf.Bytes())
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
