package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/imagerag/internal/app"
	"github.com/yungbote/imagerag/internal/platform/envutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
	"github.com/yungbote/imagerag/internal/platform/pinecone"
)

func main() {
	var ids string
	flag.StringVar(&ids, "id", "", "comma-separated record ids to fetch")
	flag.Parse()

	_ = godotenv.Load()
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := app.LoadConfig(log)
	if err != nil {
		fmt.Printf("config: %v\n", err)
		os.Exit(1)
	}
	vb, err := app.OpenVectorBackend(log, cfg)
	if err != nil {
		fmt.Printf("vector backend: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	failed := false
	if vb.Pinecone != nil {
		hc, err := pinecone.CheckHost(ctx, vb.Pinecone, cfg.Vector.PineconeIndexName, cfg.Vector.PineconeHost)
		if err != nil {
			fmt.Printf("describe index %s: %v\n", cfg.Vector.PineconeIndexName, err)
			os.Exit(1)
		}
		fmt.Printf("index=%s host=%s dimension=%d metric=%s ready=%t state=%s\n",
			hc.IndexName, hc.DescribedHost, hc.Dimension, hc.Metric, hc.Ready, hc.State)
		if !hc.Match() {
			fmt.Printf("PINECONE_HOST %s does not match described host %s\n", hc.ConfiguredHost, hc.DescribedHost)
			failed = true
		}
		if hc.Dimension != cfg.Embedding.Dimension {
			fmt.Printf("index dimension %d does not match EMBEDDING_DIM %d\n", hc.Dimension, cfg.Embedding.Dimension)
			failed = true
		}
	}

	st, err := vb.Index.Stats(ctx)
	if err != nil {
		fmt.Printf("stats: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("provider=%s dimension=%d total_vectors=%d namespace_vectors=%d\n",
		vb.Provider, st.Dimension, st.TotalVectors, st.NamespaceVectors)

	var want []string
	for _, id := range strings.Split(ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			want = append(want, id)
		}
	}
	if len(want) > 0 {
		got, err := vb.Index.Fetch(ctx, want)
		if err != nil {
			fmt.Printf("fetch: %v\n", err)
			os.Exit(1)
		}
		found := map[string]bool{}
		for _, m := range got {
			found[m.ID] = true
			fmt.Printf("%s  %s  %s\n", m.ID, m.Metadata.FilePath, m.Metadata.Caption)
		}
		for _, id := range want {
			if !found[id] {
				fmt.Printf("%s  missing\n", id)
				failed = true
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}
