package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soilnet/ismn/internal/logger"
	"github.com/soilnet/ismn/pkg/collection"
)

// ObjectStore is the subset of S3 the publisher uses. *Client implements it.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Presigner issues time-limited download URLs. *Client implements it.
type Presigner interface {
	PresignedGetURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Artifact is a local file to publish under Name.
type Artifact struct {
	Name        string
	Path        string
	ContentType string
}

// Content types of the index artifacts.
const (
	ContentTypeCSV     = "text/csv"
	ContentTypeParquet = "application/vnd.apache.parquet"
	ContentTypeXLSX    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeLog     = "text/plain"
	contentTypeJSON    = "application/json"
)

const (
	manifestName = "manifest.json"
	latestName   = "latest.json"
)

// Manifest describes one published run.
type Manifest struct {
	RunID     string            `json:"run_id"`
	Archive   string            `json:"archive"`
	Published time.Time         `json:"published"`
	Files     int               `json:"files"`
	Stations  int               `json:"stations"`
	Networks  int               `json:"networks"`
	Errors    int               `json:"errors"`
	Warnings  int               `json:"warnings"`
	Artifacts map[string]string `json:"artifacts"` // name -> object key
}

// Publisher uploads index artifacts as
// <prefix>/<archive>/<run>/<name> and points <prefix>/<archive>/latest.json
// at the newest run.
type Publisher struct {
	store  ObjectStore
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher writing under prefix.
func NewPublisher(store ObjectStore, prefix string, log *zap.Logger) *Publisher {
	return &Publisher{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.OrNop(log),
		now:    time.Now,
	}
}

func (p *Publisher) archiveKey(archive string, parts ...string) string {
	return path.Join(append([]string{p.prefix, archive}, parts...)...)
}

// Publish uploads the artifacts of one run of archive. rep may be nil when
// the index was loaded rather than built; the run then gets a fresh ID.
func (p *Publisher) Publish(ctx context.Context, archive string, rep *collection.Report, artifacts ...Artifact) (*Manifest, error) {
	if archive == "" {
		return nil, fmt.Errorf("archive name is required")
	}
	m := &Manifest{
		RunID:     uuid.NewString(),
		Archive:   archive,
		Published: p.now().UTC(),
		Artifacts: make(map[string]string, len(artifacts)),
	}
	if rep != nil {
		if rep.RunID != "" {
			m.RunID = rep.RunID
		}
		m.Files, m.Stations, m.Networks = rep.Files, rep.Stations, rep.Networks
		m.Errors, m.Warnings = len(rep.Errors), len(rep.Warnings)
	}

	for _, a := range artifacts {
		if _, dup := m.Artifacts[a.Name]; dup || a.Name == manifestName {
			return nil, fmt.Errorf("duplicate artifact name %q", a.Name)
		}
		key := p.archiveKey(archive, m.RunID, a.Name)
		if err := p.putFile(ctx, key, a); err != nil {
			return nil, err
		}
		m.Artifacts[a.Name] = key
		p.logger.Info("published artifact", zap.String("key", key))
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, p.archiveKey(archive, m.RunID, manifestName), bytes.NewReader(data), contentTypeJSON); err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, p.archiveKey(archive, latestName), bytes.NewReader(data), contentTypeJSON); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Publisher) putFile(ctx context.Context, key string, a Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("failed to open artifact %s: %w", a.Name, err)
	}
	defer f.Close()
	return p.store.Put(ctx, key, f, a.ContentType)
}

// Latest returns the manifest of the newest published run of archive.
func (p *Publisher) Latest(ctx context.Context, archive string) (*Manifest, error) {
	return p.manifest(ctx, p.archiveKey(archive, latestName))
}

// Manifest returns the manifest of one run.
func (p *Publisher) Manifest(ctx context.Context, archive, runID string) (*Manifest, error) {
	return p.manifest(ctx, p.archiveKey(archive, runID, manifestName))
}

func (p *Publisher) manifest(ctx context.Context, key string) (*Manifest, error) {
	rc, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var m Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", key, err)
	}
	return &m, nil
}

// Runs lists the published run IDs of archive, oldest first.
func (p *Publisher) Runs(ctx context.Context, archive string) ([]string, error) {
	objs, err := p.store.List(ctx, p.archiveKey(archive)+"/")
	if err != nil {
		return nil, err
	}

	type run struct {
		id   string
		when time.Time
	}
	var runs []run
	for _, o := range objs {
		if path.Base(o.Key) != manifestName {
			continue
		}
		runs = append(runs, run{id: path.Base(path.Dir(o.Key)), when: o.LastModified})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].when.Equal(runs[j].when) {
			return runs[i].when.Before(runs[j].when)
		}
		return runs[i].id < runs[j].id
	})

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.id
	}
	return ids, nil
}

// Download writes the artifact name of a manifest to dst.
func (p *Publisher) Download(ctx context.Context, m *Manifest, name, dst string) error {
	key, ok := m.Artifacts[name]
	if !ok {
		return fmt.Errorf("run %s has no artifact %q", m.RunID, name)
	}

	rc, err := p.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Links returns a presigned download URL per artifact of m, valid for
// expires.
func (p *Publisher) Links(ctx context.Context, m *Manifest, expires time.Duration) (map[string]string, error) {
	ps, ok := p.store.(Presigner)
	if !ok {
		return nil, fmt.Errorf("object store cannot presign URLs")
	}
	links := make(map[string]string, len(m.Artifacts))
	for name, key := range m.Artifacts {
		u, err := ps.PresignedGetURL(ctx, key, expires)
		if err != nil {
			return nil, err
		}
		links[name] = u
	}
	return links, nil
}
