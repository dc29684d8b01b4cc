package pinecone

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/imagerag/internal/platform/ctxutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

// VectorStore is the provider-neutral store the index adapter is built on. The qdrant
// package implements it as well.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// QueryMatches returns matches with metadata, highest score first.
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]VectorMatch, error)
	// FetchVectors returns stored records by id. Missing ids are omitted; Score is zero.
	FetchVectors(ctx context.Context, namespace string, ids []string) ([]VectorMatch, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
	Stats(ctx context.Context, namespace string) (VectorStats, error)
}

type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

type VectorStats struct {
	Dimension        int
	TotalVectors     int64
	NamespaceVectors int64
}

type VectorStoreConfig struct {
	IndexName string
	// IndexHost skips describe_index at startup when set.
	IndexHost       string
	NamespacePrefix string
}

type vectorStore struct {
	log       *logger.Logger
	pc        Client
	indexName string
	indexHost string
	nsPrefix  string
}

func NewVectorStore(log *logger.Logger, pc Client, cfg VectorStoreConfig) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}
	indexName := strings.TrimSpace(cfg.IndexName)
	if indexName == "" {
		return nil, fmt.Errorf("missing PINECONE_INDEX_NAME")
	}

	host := NormalizeHost(cfg.IndexHost)
	if host == "" {
		desc, err := pc.DescribeIndex(context.Background(), indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = NormalizeHost(desc.Host)
		log.Warn("PINECONE_HOST not set; resolved via describe_index",
			"index_name", indexName,
			"index_host", host,
		)
	}

	return &vectorStore{
		log:       log.With("service", "PineconeVectorStore", "index_name", indexName),
		pc:        pc,
		indexName: indexName,
		indexHost: host,
		nsPrefix:  strings.TrimSpace(cfg.NamespacePrefix),
	}, nil
}

func (s *vectorStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	resp, err := s.pc.UpsertVectors(ctx, s.indexHost, UpsertRequest{
		Namespace: s.qualifyNamespace(namespace),
		Vectors:   vectors,
	})
	if err != nil {
		return err
	}
	if resp != nil && resp.UpsertedCount != int64(len(vectors)) {
		s.log.Warn("pinecone upsert count mismatch", "requested", len(vectors), "upserted", resp.UpsertedCount)
	}
	return nil
}

func (s *vectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]VectorMatch, error) {
	resp, err := s.pc.Query(ctx, s.indexHost, QueryRequest{
		Namespace:       s.qualifyNamespace(namespace),
		Vector:          q,
		TopK:            topK,
		Filter:          filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		out = append(out, VectorMatch{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return out, nil
}

func (s *vectorStore) FetchVectors(ctx context.Context, namespace string, ids []string) ([]VectorMatch, error) {
	resp, err := s.pc.Fetch(ctx, s.indexHost, s.qualifyNamespace(namespace), ids)
	if err != nil {
		return nil, err
	}
	out := make([]VectorMatch, 0, len(ids))
	// keep caller order
	for _, id := range ids {
		v, ok := resp.Vectors[strings.TrimSpace(id)]
		if !ok {
			continue
		}
		out = append(out, VectorMatch{ID: v.ID, Metadata: v.Metadata})
	}
	return out, nil
}

func (s *vectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.pc.DeleteVectors(ctx, s.indexHost, DeleteRequest{
		Namespace: s.qualifyNamespace(namespace),
		IDs:       ids,
	})
}

func (s *vectorStore) Stats(ctx context.Context, namespace string) (VectorStats, error) {
	resp, err := s.pc.DescribeIndexStats(ctx, s.indexHost)
	if err != nil {
		return VectorStats{}, err
	}
	return VectorStats{
		Dimension:        resp.Dimension,
		TotalVectors:     resp.TotalVectorCount,
		NamespaceVectors: resp.Namespaces[s.qualifyNamespace(namespace)].VectorCount,
	}, nil
}

func (s *vectorStore) qualifyNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	switch {
	case s.nsPrefix == "":
		return ns
	case ns == "":
		return s.nsPrefix
	default:
		return s.nsPrefix + ":" + ns
	}
}

// HostCheck compares the configured data-plane host with what describe_index reports.
type HostCheck struct {
	IndexName      string
	DescribedHost  string
	ConfiguredHost string
	Dimension      int
	Metric         string
	Ready          bool
	State          string
}

func (h HostCheck) Match() bool {
	return h.ConfiguredHost == "" || NormalizeHost(h.ConfiguredHost) == NormalizeHost(h.DescribedHost)
}

func CheckHost(ctx context.Context, pc Client, indexName, configuredHost string) (HostCheck, error) {
	desc, err := pc.DescribeIndex(ctxutil.Default(ctx), indexName)
	if err != nil {
		return HostCheck{}, err
	}
	return HostCheck{
		IndexName:      desc.Name,
		DescribedHost:  NormalizeHost(desc.Host),
		ConfiguredHost: NormalizeHost(configuredHost),
		Dimension:      desc.Dimension,
		Metric:         desc.Metric,
		Ready:          desc.Status.Ready,
		State:          desc.Status.State,
	}, nil
}
