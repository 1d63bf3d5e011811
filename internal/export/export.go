// Package export uploads JSON snapshots of all projects and tasks to
// S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ansoraGROUP/dupaboard/internal/config"
	"github.com/ansoraGROUP/dupaboard/internal/models"
	"github.com/ansoraGROUP/dupaboard/internal/repository"
)

// Snapshot is the object body written to the bucket.
type Snapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Projects    []models.Project `json:"projects"`
	Tasks       []models.Task    `json:"tasks"`
}

// Uploader is the subset of *s3.Client the exporter needs.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from the EXPORT_S3_* settings. A custom
// endpoint switches to path-style addressing for MinIO and friends.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.ExportS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.ExportS3AccessKey, cfg.ExportS3SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ExportS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ExportS3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

type Exporter struct {
	store    repository.Store
	uploader Uploader
	bucket   string
	prefix   string
	now      func() time.Time
}

// New returns an exporter reading through store, which should be the
// privileged handle so every owner's rows are included.
func New(store repository.Store, uploader Uploader, bucket, prefix string) *Exporter {
	return &Exporter{
		store:    store,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		now:      time.Now,
	}
}

// Result describes one uploaded snapshot.
type Result struct {
	Key      string
	Size     int64
	Projects int
	Tasks    int
}

func (e *Exporter) Run(ctx context.Context) (*Result, error) {
	projects, err := e.store.AllProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("read projects: %w", err)
	}
	tasks, err := e.store.ListTasks(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	snap := Snapshot{GeneratedAt: e.now().UTC(), Projects: projects, Tasks: tasks}
	if snap.Projects == nil {
		snap.Projects = []models.Project{}
	}
	if snap.Tasks == nil {
		snap.Tasks = []models.Task{}
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	key := ObjectKey(e.prefix, snap.GeneratedAt)
	cr := &countingReader{r: bytes.NewReader(body)}
	_, err = e.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          cr,
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	slog.Info("Snapshot uploaded", "bucket", e.bucket, "key", key, "bytes", cr.n,
		"projects", len(projects), "tasks", len(tasks))
	return &Result{Key: key, Size: cr.n, Projects: len(projects), Tasks: len(tasks)}, nil
}

// ObjectKey returns "<prefix>/snapshot-<UTC timestamp>.json".
func ObjectKey(prefix string, t time.Time) string {
	name := "snapshot-" + t.UTC().Format("20060102T150405Z") + ".json"
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
