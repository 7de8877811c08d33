package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soilnet/ismn/pkg/collection"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
)

// memStore keeps objects in memory; each Put advances its clock.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	mod     map[string]time.Time
	clock   time.Time
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		mod:     make(map[string]time.Time),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = s.clock.Add(time.Second)
	s.objects[key], s.types[key], s.mod[key] = data, contentType, s.clock
	return nil
}

func (s *memStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ObjectInfo
	for k, v := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v)), LastModified: s.mod[k]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// presignStore adds fake presigning to memStore.
type presignStore struct{ *memStore }

func (s presignStore) PresignedGetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return fmt.Sprintf("https://mem/%s?expires=%d", key, int(expires.Seconds())), nil
}

func artifact(t *testing.T, name, content, contentType string) Artifact {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return Artifact{Name: name, Path: p, ContentType: contentType}
}

func TestPublisher_Publish(t *testing.T) {
	store := newMemStore()
	p := NewPublisher(store, "/ismn/", nil)
	ctx := context.Background()

	rep := &collection.Report{
		RunID:    "run-1",
		Files:    12,
		Stations: 4,
		Networks: 2,
		Warnings: []collection.ErrorRecord{collection.NewErrorRecord("SCAN/A", ismnerr.New(ismnerr.CodeStaticMetaMissing, "no csv"))},
	}
	m, err := p.Publish(ctx, "Data_separate_files", rep,
		artifact(t, "index.csv", "a,b\n", ContentTypeCSV),
		artifact(t, "errors.log", "SCAN/A: no csv\n", ContentTypeLog),
	)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if m.RunID != "run-1" || m.Files != 12 || m.Warnings != 1 || m.Errors != 0 {
		t.Errorf("manifest = %+v", m)
	}
	wantKey := "ismn/Data_separate_files/run-1/index.csv"
	if m.Artifacts["index.csv"] != wantKey {
		t.Errorf("index key = %s, want %s", m.Artifacts["index.csv"], wantKey)
	}
	if string(store.objects[wantKey]) != "a,b\n" || store.types[wantKey] != ContentTypeCSV {
		t.Errorf("object %s = %q (%s)", wantKey, store.objects[wantKey], store.types[wantKey])
	}
	for _, k := range []string{"ismn/Data_separate_files/run-1/manifest.json", "ismn/Data_separate_files/latest.json"} {
		if _, ok := store.objects[k]; !ok {
			t.Errorf("missing %s", k)
		}
	}

	latest, err := p.Latest(ctx, "Data_separate_files")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.RunID != "run-1" || len(latest.Artifacts) != 2 {
		t.Errorf("latest = %+v", latest)
	}

	dst := filepath.Join(t.TempDir(), "dl", "index.csv")
	if err := p.Download(ctx, latest, "index.csv", dst); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "a,b\n" {
		t.Errorf("downloaded %q", data)
	}
	if err := p.Download(ctx, latest, "index.parquet", dst); err == nil {
		t.Error("Download of an unknown artifact succeeded")
	}
}

func TestPublisher_Runs(t *testing.T) {
	store := newMemStore()
	p := NewPublisher(store, "ismn", nil)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		if _, err := p.Publish(ctx, "arch", &collection.Report{RunID: id}); err != nil {
			t.Fatal(err)
		}
	}
	// Runs of another archive sharing the prefix stay separate.
	if _, err := p.Publish(ctx, "arch2", &collection.Report{RunID: "z"}); err != nil {
		t.Fatal(err)
	}

	runs, err := p.Runs(ctx, "arch")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(runs, ","); got != "b,a,c" {
		t.Errorf("Runs() = %s, want publication order b,a,c", got)
	}

	latest, err := p.Latest(ctx, "arch")
	if err != nil || latest.RunID != "c" {
		t.Errorf("Latest = %+v, %v", latest, err)
	}
	m, err := p.Manifest(ctx, "arch", "a")
	if err != nil || m.RunID != "a" {
		t.Errorf("Manifest(a) = %+v, %v", m, err)
	}
}

func TestPublisher_Errors(t *testing.T) {
	p := NewPublisher(newMemStore(), "ismn", nil)
	ctx := context.Background()

	if _, err := p.Publish(ctx, "", nil); err == nil {
		t.Error("Publish without archive name succeeded")
	}
	a := artifact(t, "index.csv", "x", ContentTypeCSV)
	if _, err := p.Publish(ctx, "arch", nil, a, a); err == nil {
		t.Error("Publish with duplicate artifacts succeeded")
	}
	missing := Artifact{Name: "gone.csv", Path: filepath.Join(t.TempDir(), "gone.csv")}
	if _, err := p.Publish(ctx, "arch", nil, missing); err == nil {
		t.Error("Publish of a missing file succeeded")
	}
	if _, err := p.Latest(ctx, "never"); err == nil {
		t.Error("Latest of an unpublished archive succeeded")
	}

	m, err := p.Publish(ctx, "arch", nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.RunID == "" {
		t.Error("run without report has no ID")
	}
}

func TestNewClient_RequiresBucket(t *testing.T) {
	if _, err := NewClient(context.Background(), DefaultConfig("", "us-east-1")); err == nil {
		t.Error("NewClient without bucket succeeded")
	}
}

// TestClient_Roundtrip runs against a real S3-compatible endpoint when
// ISMN_TEST_S3_ENDPOINT and ISMN_TEST_S3_BUCKET are set.
func TestClient_Roundtrip(t *testing.T) {
	endpoint, bucket := os.Getenv("ISMN_TEST_S3_ENDPOINT"), os.Getenv("ISMN_TEST_S3_BUCKET")
	if endpoint == "" || bucket == "" {
		t.Skip("ISMN_TEST_S3_ENDPOINT or ISMN_TEST_S3_BUCKET not set")
	}
	cfg := DefaultConfig(bucket, "us-east-1")
	cfg.Endpoint, cfg.UsePathStyle = endpoint, true
	ctx := context.Background()

	c, err := NewClient(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	p := NewPublisher(c, "ismn-test/"+t.Name(), nil)
	m, err := p.Publish(ctx, "arch", nil, artifact(t, "index.csv", "a\n", ContentTypeCSV))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	latest, err := p.Latest(ctx, "arch")
	if err != nil || latest.RunID != m.RunID {
		t.Errorf("Latest = %+v, %v", latest, err)
	}
}

func TestPublisher_ReportWithoutRun(t *testing.T) {
	p := NewPublisher(newMemStore(), "ismn", nil)
	m, err := p.Publish(context.Background(), "arch", &collection.Report{Files: 7, Networks: 1})
	if err != nil {
		t.Fatal(err)
	}
	if m.RunID == "" || m.Files != 7 {
		t.Errorf("manifest = %+v", m)
	}
}

func TestPublisher_Links(t *testing.T) {
	ctx := context.Background()
	p := NewPublisher(presignStore{newMemStore()}, "ismn", nil)
	m, err := p.Publish(ctx, "arch", nil, artifact(t, "index.csv", "a\n", ContentTypeCSV))
	if err != nil {
		t.Fatal(err)
	}
	links, err := p.Links(ctx, m, time.Hour)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	want := "https://mem/" + m.Artifacts["index.csv"] + "?expires=3600"
	if len(links) != 1 || links["index.csv"] != want {
		t.Errorf("links = %v, want index.csv -> %s", links, want)
	}

	plain := NewPublisher(newMemStore(), "ismn", nil)
	if _, err := plain.Links(ctx, m, time.Hour); err == nil {
		t.Error("Links without presigning store succeeded")
	}
}

func TestClient_PresignedGetURL(t *testing.T) {
	cfg := DefaultConfig("ismn-index", "us-east-1")
	cfg.Endpoint, cfg.UsePathStyle = "http://localhost:9000", true
	cfg.AccessKeyID, cfg.SecretAccessKey = "test", "secret"
	c, err := NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	u, err := c.PresignedGetURL(context.Background(), "ismn/arch/run/index.csv", 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignedGetURL: %v", err)
	}
	for _, part := range []string{"http://localhost:9000/ismn-index/ismn/arch/run/index.csv", "X-Amz-Expires=900", "X-Amz-Signature="} {
		if !strings.Contains(u, part) {
			t.Errorf("URL %s lacks %s", u, part)
		}
	}
}
