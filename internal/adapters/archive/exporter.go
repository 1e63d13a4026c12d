// Package archive renders inventory exports into a blob store and restores
// them.
package archive

import (
	"arboria/internal/blob"
	"arboria/internal/core"
	"arboria/pkg/domain"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	keyPrefix    = "archives/"
	manifestName = "manifest.json"
	documentName = "document.json"
)

// Source is the slice of core.Service the exporter needs.
type Source interface {
	ExportState(ctx context.Context, farmID string) (domain.Document, error)
	ImportState(ctx context.Context, doc domain.Document) (core.ImportResult, error)
}

// Artifact is one stored file of an archive.
type Artifact struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// Record describes a stored archive.
type Record struct {
	ID            string     `json:"id"`
	FarmID        string     `json:"farm_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Farms         int        `json:"farms"`
	Trees         int        `json:"trees"`
	Interventions int        `json:"interventions"`
	Artifacts     []Artifact `json:"artifacts"`
}

// Exporter writes archives to a blob store.
type Exporter struct {
	source    Source
	store     blob.Store
	now       func() time.Time
	urlExpiry time.Duration
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithClock overrides the archive timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithURLExpiry sets the lifetime of presigned artifact URLs.
func WithURLExpiry(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.urlExpiry = d
		}
	}
}

// NewExporter builds an exporter over source and store.
func NewExporter(source Source, store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{source: source, store: store, now: time.Now, urlExpiry: 15 * time.Minute}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Store returns the underlying blob store.
func (e *Exporter) Store() blob.Store { return e.store }

type renderer struct {
	name        string
	contentType string
	render      func(domain.Document) ([]byte, error)
}

var renderers = []renderer{
	{documentName, "application/json", renderDocument},
	{"trees.csv", "text/csv", renderCSV},
	{"inventory.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", renderWorkbook},
	{"trees.geojson", "application/geo+json", renderGeoJSON},
}

func newArchiveID(at time.Time) string {
	return at.UTC().Format("20060102T150405Z") + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Archive exports one farm (every farm when farmID is empty) and stores the
// rendered artifacts under archives/<id>/.
func (e *Exporter) Archive(ctx context.Context, farmID string) (Record, error) {
	doc, err := e.source.ExportState(ctx, farmID)
	if err != nil {
		return Record{}, err
	}
	created := e.now().UTC()
	rec := Record{
		ID:            newArchiveID(created),
		FarmID:        farmID,
		CreatedAt:     created,
		Farms:         len(doc.Farms),
		Trees:         len(doc.Trees),
		Interventions: len(doc.Interventions),
	}
	meta := map[string]string{"archive-id": rec.ID}
	if farmID != "" {
		meta["farm-id"] = farmID
	}
	for _, r := range renderers {
		data, err := r.render(doc)
		if err != nil {
			return Record{}, fmt.Errorf("render %s: %w", r.name, err)
		}
		key := keyPrefix + rec.ID + "/" + r.name
		info, err := e.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: r.contentType, Metadata: meta})
		if err != nil {
			return Record{}, fmt.Errorf("store %s: %w", r.name, err)
		}
		art := Artifact{Name: r.name, Key: key, ContentType: r.contentType, Size: info.Size}
		url, err := e.store.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: e.urlExpiry})
		switch {
		case err == nil:
			art.URL = url
		case !errors.Is(err, blob.ErrUnsupported):
			return Record{}, fmt.Errorf("presign %s: %w", r.name, err)
		}
		rec.Artifacts = append(rec.Artifacts, art)
	}
	manifest, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	if _, err := e.store.Put(ctx, keyPrefix+rec.ID+"/"+manifestName, bytes.NewReader(manifest), blob.PutOptions{ContentType: "application/json", Metadata: meta}); err != nil {
		return Record{}, fmt.Errorf("store manifest: %w", err)
	}
	return rec, nil
}

// List returns every stored archive, newest first.
func (e *Exporter) List(ctx context.Context) ([]Record, error) {
	infos, err := e.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0)
	for _, info := range infos {
		if path.Base(info.Key) != manifestName {
			continue
		}
		rec, err := e.readManifest(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// Get returns one archive record.
func (e *Exporter) Get(ctx context.Context, id string) (Record, error) {
	if err := checkID(id); err != nil {
		return Record{}, err
	}
	return e.readManifest(ctx, keyPrefix+id+"/"+manifestName)
}

func (e *Exporter) readManifest(ctx context.Context, key string) (Record, error) {
	var rec Record
	data, err := e.read(ctx, key)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

func (e *Exporter) read(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := e.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			id := strings.TrimPrefix(path.Dir(key), keyPrefix)
			return nil, domain.NotFoundError{Entity: domain.EntityArchive, ID: id}
		}
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// Restore imports the document of archive id. Imports are additive, so
// restoring twice duplicates the archived records.
func (e *Exporter) Restore(ctx context.Context, id string) (core.ImportResult, error) {
	if err := checkID(id); err != nil {
		return core.ImportResult{}, err
	}
	data, err := e.read(ctx, keyPrefix+id+"/"+documentName)
	if err != nil {
		return core.ImportResult{}, err
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return core.ImportResult{}, domain.DocumentError{Problems: []string{"archive document: " + err.Error()}}
	}
	return e.source.ImportState(ctx, doc)
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return domain.InputError{Field: "archive_id", Reason: "malformed"}
	}
	return nil
}
