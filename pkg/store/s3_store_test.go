package store

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// fakeS3 is an in-memory bucket implementing the s3API slice the store
// uses.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func newTestS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()

	fake := newFakeS3()
	cfg := S3Config{Bucket: "vapordeck-test", Prefix: "instances"}
	return NewS3StoreWithClient(fake, cfg, testParser(t), zerolog.Nop()), fake
}

func TestS3StoreRoundTrip(t *testing.T) {
	s, fake := newTestS3Store(t)
	ctx := context.Background()

	fp, err := s.Save(ctx, testState("demo-1"), NoPrior)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := fake.objects["instances/demo-1.yaml"]; !ok {
		t.Fatalf("record not stored under prefixed key, have %v", fake.objects)
	}

	loaded, loadedFP, err := s.Load(ctx, "demo-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loadedFP != fp {
		t.Errorf("fingerprint mismatch: %s vs %s", loadedFP, fp)
	}
	if loaded.Name != "demo-1" {
		t.Errorf("unexpected record: %+v", loaded)
	}
}

func TestS3StoreMissingRecord(t *testing.T) {
	s, _ := newTestS3Store(t)

	if _, _, err := s.Load(context.Background(), "ghost"); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if err := s.Delete(context.Background(), "ghost", "whatever"); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestS3StoreFingerprintCheck(t *testing.T) {
	s, _ := newTestS3Store(t)
	ctx := context.Background()

	fp, err := s.Save(ctx, testState("demo-1"), NoPrior)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Save(ctx, testState("demo-1"), NoPrior); !IsConflict(err) {
		t.Fatalf("second create must conflict, got %v", err)
	}

	updated := testState("demo-1")
	updated.Provision.Input["zone"] = "fr-par-2"
	fp2, err := s.Save(ctx, updated, fp)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := s.Delete(ctx, "demo-1", fp); !IsConflict(err) {
		t.Fatalf("delete with stale fingerprint must conflict, got %v", err)
	}
	if err := s.Delete(ctx, "demo-1", fp2); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestS3StoreList(t *testing.T) {
	s, fake := newTestS3Store(t)
	ctx := context.Background()

	for _, name := range []string{"demo-1", "demo-2"} {
		if _, err := s.Save(ctx, testState(name), NoPrior); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	// Foreign objects under the prefix are not records.
	fake.objects["instances/notes.txt"] = []byte("x")
	fake.objects["instances/sub/dir.yaml"] = []byte("x")

	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(names)
	want := []string{"demo-1", "demo-2"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("unexpected listing: %v", names)
	}
}
