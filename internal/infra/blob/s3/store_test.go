package s3

import (
	"arboria/internal/blob/core"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func newMockStore(t *testing.T) (*Store, *MockTransport) {
	t.Helper()
	store, rt, err := NewMock(context.Background())
	if err != nil {
		t.Fatalf("NewMock: %v", err)
	}
	return store, rt
}

func TestStoreMockedFlow(t *testing.T) {
	ctx := context.Background()
	store, rt := newMockStore(t)
	if store.Driver() != core.DriverS3 || store.Bucket() != "arboria-test" {
		t.Fatalf("unexpected store identity")
	}

	info, err := store.Put(ctx, "archives/x/document.json", bytes.NewReader([]byte(`{"farms":[]}`)), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"farm": "all"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "archives/x/document.json" || info.Size != 12 || info.ContentType != "application/json" || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Metadata["farm"] != "all" {
		t.Fatalf("metadata not round-tripped: %+v", info.Metadata)
	}
	if _, err := store.Put(ctx, "archives/x/document.json", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	_, rc, err := store.Get(ctx, "archives/x/document.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"farms":[]}` {
		t.Fatalf("get body %q", body)
	}
	if keys := rt.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys %v", keys)
	}

	url, err := store.PresignURL(ctx, "archives/x/document.json", core.SignedURLOptions{Expiry: time.Minute})
	if err != nil || !strings.Contains(url, "archives/x/document.json") || !strings.Contains(url, "X-Amz-Expires=60") {
		t.Fatalf("presign: %q %v", url, err)
	}

	ok, err := store.Delete(ctx, "archives/x/document.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "archives/x/document.json"); ok || err != nil {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStoreMissingKeys(t *testing.T) {
	ctx := context.Background()
	store, _ := newMockStore(t)
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := store.PresignURL(ctx, "nope", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if _, err := store.Put(ctx, "", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
}

func TestStoreListPaginates(t *testing.T) {
	ctx := context.Background()
	store, rt := newMockStore(t)
	rt.PageSize = 2
	for _, key := range []string{"archives/c", "archives/a", "archives/b", "other/z", "archives/d", "archives/e"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "archives/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 5 || list[0].Key != "archives/a" || list[4].Key != "archives/e" || list[0].Size != int64(len("archives/a")) {
		t.Fatalf("unexpected list %+v", list)
	}
	empty, err := store.List(ctx, "none/")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %+v %v", empty, err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	s, err := New(context.Background(), Config{Bucket: "b", AccessKeyID: "AKIA", SecretAccessKey: "secret", Endpoint: "http://minio:9000", PathStyle: true})
	if err != nil || s.Bucket() != "b" {
		t.Fatalf("New: %v", err)
	}
}

func TestDecodeChunked(t *testing.T) {
	got, err := decodeChunked([]byte("5;chunk-signature=abc\r\nhello\r\n6\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"))
	if err != nil || string(got) != "hello world" {
		t.Fatalf("decode: %q %v", got, err)
	}
	for _, bad := range []string{"zz\r\nhello", "5\r\nhel", "nochunk"} {
		if _, err := decodeChunked([]byte(bad)); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestMockTransportUnsupportedMethod(t *testing.T) {
	rt := &MockTransport{objects: map[string]mockObject{}}
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %v %v", resp, err)
	}
}
