package steps

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"image"
	"image/png"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/platform/dbctx"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

const testDim = 16

// pngBytes returns a distinct valid PNG per width.
func pngBytes(t *testing.T, width int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, 2))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

type fakeBlob struct {
	mu    sync.Mutex
	calls int
	err   error
	names []string
}

func (f *fakeBlob) Store(ctx context.Context, data []byte, fileName, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.names = append(f.names, fileName)
	if f.err != nil {
		return "", f.err
	}
	return "https://blobs.example.com/public/" + fileName, nil
}

type fakeCaptioner struct {
	mu       sync.Mutex
	calls    int
	// failOn is consulted first; a non-nil error fails the call.
	failOn func(data []byte) error
	byData map[string]string
}

func (f *fakeCaptioner) Caption(ctx context.Context, data []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn != nil {
		if err := f.failOn(data); err != nil {
			return "", err
		}
	}
	if c, ok := f.byData[string(data)]; ok {
		return c, nil
	}
	return "a small test image", nil
}

// bagEmbedder hashes words into a fixed number of buckets and normalizes; shared words
// give positive cosine similarity.
type bagEmbedder struct {
	mu    sync.Mutex
	calls int
	dim   int
	err   error
	// override returns a vector of this length instead when > 0.
	override int
}

func (e *bagEmbedder) Dimension() int { return e.dim }

func (e *bagEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if strings.TrimSpace(text) == "" {
		return nil, types.EmbeddingError("embed", nil, "empty input text")
	}
	if e.override > 0 {
		return make([]float32, e.override), nil
	}
	vec := make([]float32, e.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,!?")))
		vec[int(h.Sum32())%e.dim] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

type memIndex struct {
	mu          sync.Mutex
	dim         int
	recs        map[string]types.AssetRecord
	upserts     int
	queries     int
	deletes     [][]string
	upsertErr   error
	queryErr    error
	fixedScores map[string]float64
}

func newMemIndex(dim int) *memIndex {
	return &memIndex{dim: dim, recs: map[string]types.AssetRecord{}}
}

func (m *memIndex) Dimension() int { return m.dim }

func (m *memIndex) Upsert(ctx context.Context, rec types.AssetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if len(rec.Vector) != m.dim {
		return types.IndexDimensionError("upsert", m.dim, len(rec.Vector))
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *memIndex) Query(ctx context.Context, vec []float32, topK int, filter Filter) ([]types.IndexMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []types.IndexMatch
	for id, rec := range m.recs {
		if filter.FileName != "" && rec.FileName != filter.FileName {
			continue
		}
		score := cosine(vec, rec.Vector)
		if s, ok := m.fixedScores[id]; ok {
			score = s
		}
		out = append(out, types.IndexMatch{ID: id, Score: score, Metadata: rec.Metadata()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memIndex) Fetch(ctx context.Context, ids []string) ([]types.IndexMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.IndexMatch
	for _, id := range ids {
		if rec, ok := m.recs[id]; ok {
			out = append(out, types.IndexMatch{ID: id, Metadata: rec.Metadata()})
		}
	}
	return out, nil
}

func (m *memIndex) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, ids)
	for _, id := range ids {
		delete(m.recs, id)
	}
	return nil
}

func (m *memIndex) Stats(ctx context.Context) (types.IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.IndexStats{Dimension: m.dim, TotalVectors: int64(len(m.recs)), NamespaceVectors: int64(len(m.recs))}, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type memCatalog struct {
	mu        sync.Mutex
	rows      []*types.Asset
	createErr error
}

func (c *memCatalog) Create(dbc dbctx.Context, rows []*types.Asset) ([]*types.Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.rows = append(c.rows, rows...)
	return rows, nil
}

func (c *memCatalog) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("not found")
}

func (c *memCatalog) ListByFileName(dbc dbctx.Context, fileName string) ([]*types.Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*types.Asset
	for _, r := range c.rows {
		if r.FileName == fileName {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *memCatalog) List(dbc dbctx.Context, limit int) ([]*types.Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if limit > len(c.rows) {
		limit = len(c.rows)
	}
	return append([]*types.Asset(nil), c.rows[:limit]...), nil
}

func (c *memCatalog) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	drop := map[uuid.UUID]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := c.rows[:0]
	for _, r := range c.rows {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	c.rows = kept
	return nil
}

type fakeLLM struct {
	calls  int
	system string
	user   string
	answer string
	err    error
}

func (f *fakeLLM) Generate(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	return f.answer, f.err
}

type fixture struct {
	blob    *fakeBlob
	caption *fakeCaptioner
	embed   *bagEmbedder
	index   *memIndex
	catalog *memCatalog
	stages  []types.Stage
	mu      sync.Mutex
}

func newFixture() *fixture {
	return &fixture{
		blob:    &fakeBlob{},
		caption: &fakeCaptioner{byData: map[string]string{}},
		embed:   &bagEmbedder{dim: testDim},
		index:   newMemIndex(testDim),
		catalog: &memCatalog{},
	}
}

func (f *fixture) ingestDeps() IngestDeps {
	return IngestDeps{
		Log:       logger.NewNop(),
		Blob:      f.blob,
		Captioner: f.caption,
		Embedder:  f.embed,
		Index:     f.index,
		Catalog:   f.catalog,
		Policy:    ReingestReplace,
		Observer: func(fileName string, from, to types.Stage) {
			f.mu.Lock()
			f.stages = append(f.stages, to)
			f.mu.Unlock()
		},
	}
}

func (f *fixture) retrieveDeps() RetrieveDeps {
	return RetrieveDeps{Log: logger.NewNop(), Embedder: f.embed, Index: f.index, MaxTopK: 100}
}
