package adapters

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/imagerag/internal/platform/openai"
	"github.com/yungbote/imagerag/internal/platform/pinecone"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

type fakeUploader struct {
	keys   []string
	types  []string
	err    error
	urlFor func(key string) string
}

func (f *fakeUploader) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	f.keys = append(f.keys, key)
	f.types = append(f.types, contentType)
	return f.err
}

func (f *fakeUploader) PublicURL(key string) string {
	if f.urlFor != nil {
		return f.urlFor(key)
	}
	return "https://cdn.example.com/" + key
}

type fakeOpenAI struct {
	text      string
	err       error
	vecs      [][]float32
	embedErr  error
	lastUser  string
	lastSys   string
	lastImage []openai.ImageInput
}

func (f *fakeOpenAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return f.vecs, f.embedErr
}

func (f *fakeOpenAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.lastSys, f.lastUser = system, user
	return f.text, f.err
}

func (f *fakeOpenAI) GenerateTextWithImages(ctx context.Context, system, user string, images []openai.ImageInput) (string, error) {
	f.lastSys, f.lastUser, f.lastImage = system, user, images
	return f.text, f.err
}

type fakeHF struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeHF) FeatureExtraction(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

func (f *fakeHF) Model() string { return "sentence-transformers/all-mpnet-base-v2" }

type mapCache struct {
	data   map[string][]float32
	getErr error
}

func (m *mapCache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[model+"|"+text]
	return v, ok, nil
}

func (m *mapCache) Set(ctx context.Context, model, text string, vec []float32) error {
	if m.data == nil {
		m.data = map[string][]float32{}
	}
	m.data[model+"|"+text] = vec
	return nil
}

func (m *mapCache) Client() goredis.UniversalClient { return nil }

func (m *mapCache) Close() error { return nil }

type fakeStore struct {
	upserts []pinecone.Vector
	lastNS  string
	filter  map[string]any
	matches []pinecone.VectorMatch
	deleted []string
	err     error
	stats   pinecone.VectorStats
}

func (s *fakeStore) Upsert(ctx context.Context, ns string, vectors []pinecone.Vector) error {
	s.lastNS = ns
	if s.err != nil {
		return s.err
	}
	s.upserts = append(s.upserts, vectors...)
	return nil
}

func (s *fakeStore) QueryMatches(ctx context.Context, ns string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	s.lastNS, s.filter = ns, filter
	if s.err != nil {
		return nil, s.err
	}
	if topK < len(s.matches) {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func (s *fakeStore) FetchVectors(ctx context.Context, ns string, ids []string) ([]pinecone.VectorMatch, error) {
	var out []pinecone.VectorMatch
	for _, id := range ids {
		for _, m := range s.matches {
			if m.ID == id {
				out = append(out, pinecone.VectorMatch{ID: m.ID, Metadata: m.Metadata})
			}
		}
	}
	return out, s.err
}

func (s *fakeStore) DeleteIDs(ctx context.Context, ns string, ids []string) error {
	s.deleted = append(s.deleted, ids...)
	return s.err
}

func (s *fakeStore) Stats(ctx context.Context, ns string) (pinecone.VectorStats, error) {
	return s.stats, s.err
}

var errBoom = errors.New("boom")

func vecOf(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i+1) / float32(n)
	}
	return v
}

func hasPrefix(s, p string) bool { return strings.HasPrefix(s, p) }
