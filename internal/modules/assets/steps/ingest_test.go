package steps

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/imagerag/internal/domain"
)

func TestIngestHappyPath(t *testing.T) {
	f := newFixture()
	img := pngBytes(t, 2)
	f.caption.byData[string(img)] = "a red bicycle leaning against a brick wall"

	out, err := Ingest(context.Background(), f.ingestDeps(), IngestInput{FileName: "bike.png", Data: img})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if out.Stage != types.StageDone {
		t.Fatalf("stage: want=%q got=%q", types.StageDone, out.Stage)
	}
	if _, err := uuid.Parse(out.ID); err != nil {
		t.Fatalf("id should be a uuid: %q", out.ID)
	}
	if out.Caption != "a red bicycle leaning against a brick wall" {
		t.Fatalf("caption: got=%q", out.Caption)
	}
	if out.MimeType != "image/png" {
		t.Fatalf("mime: want=%q got=%q", "image/png", out.MimeType)
	}
	rec, ok := f.index.recs[out.ID]
	if !ok {
		t.Fatalf("record %s not in index", out.ID)
	}
	if len(rec.Vector) != testDim {
		t.Fatalf("vector dim: want=%d got=%d", testDim, len(rec.Vector))
	}
	if rec.FileLocator != "https://blobs.example.com/public/bike.png" {
		t.Fatalf("locator: got=%q", rec.FileLocator)
	}
	want := []types.Stage{types.StageUploading, types.StageCaptioning, types.StageEmbedding, types.StageIndexing, types.StageDone}
	if strings.Join(stageStrings(f.stages), ",") != strings.Join(stageStrings(want), ",") {
		t.Fatalf("stages: want=%v got=%v", want, f.stages)
	}
	if len(f.catalog.rows) != 1 || f.catalog.rows[0].ID.String() != out.ID {
		t.Fatalf("catalog rows: got=%d", len(f.catalog.rows))
	}
	if f.catalog.rows[0].VectorDim != testDim {
		t.Fatalf("catalog vector_dim: want=%d got=%d", testDim, f.catalog.rows[0].VectorDim)
	}
}

func TestIngestCaptionFailureStopsBeforeIndex(t *testing.T) {
	f := newFixture()
	f.caption.failOn = func([]byte) error { return errors.New("vision upstream 500") }

	out, err := Ingest(context.Background(), f.ingestDeps(), IngestInput{FileName: "a.png", Data: pngBytes(t, 2)})
	if !errors.Is(err, types.ErrCaption) {
		t.Fatalf("err: want ErrCaption got=%v", err)
	}
	var ie *IngestError
	if !errors.As(err, &ie) || ie.Stage != types.StageCaptioning || ie.FileName != "a.png" {
		t.Fatalf("IngestError: got=%+v", ie)
	}
	if out.Stage != types.StageFailed {
		t.Fatalf("stage: want=%q got=%q", types.StageFailed, out.Stage)
	}
	if f.embed.calls != 0 || f.index.upserts != 0 {
		t.Fatalf("calls after caption failure: embed=%d upsert=%d", f.embed.calls, f.index.upserts)
	}
	if len(f.index.recs) != 0 || len(f.catalog.rows) != 0 {
		t.Fatalf("no record may exist after a caption failure")
	}
}

func TestIngestStorageFailureStopsBeforeCaption(t *testing.T) {
	f := newFixture()
	f.blob.err = errors.New("bucket unavailable")

	_, err := Ingest(context.Background(), f.ingestDeps(), IngestInput{FileName: "a.png", Data: pngBytes(t, 2)})
	if !errors.Is(err, types.ErrStorage) {
		t.Fatalf("err: want ErrStorage got=%v", err)
	}
	if f.caption.calls != 0 {
		t.Fatalf("caption calls: want=0 got=%d", f.caption.calls)
	}
}

func TestIngestEmptyCaptionIsCaptionError(t *testing.T) {
	f := newFixture()
	img := pngBytes(t, 2)
	f.caption.byData[string(img)] = "   "

	_, err := Ingest(context.Background(), f.ingestDeps(), IngestInput{FileName: "a.png", Data: img})
	if !errors.Is(err, types.ErrCaption) {
		t.Fatalf("err: want ErrCaption got=%v", err)
	}
	if f.embed.calls != 0 {
		t.Fatalf("embed must not run on an empty caption")
	}
}

func TestIngestDimensionMismatchNeverReachesIndex(t *testing.T) {
	f := newFixture()
	f.embed.override = testDim + 1

	_, err := Ingest(context.Background(), f.ingestDeps(), IngestInput{FileName: "a.png", Data: pngBytes(t, 2)})
	if !errors.Is(err, types.ErrEmbedding) {
		t.Fatalf("err: want ErrEmbedding got=%v", err)
	}
	if f.index.upserts != 0 {
		t.Fatalf("upserts: want=0 got=%d", f.index.upserts)
	}
}

func TestIngestIndexErrorsKeepKind(t *testing.T) {
	f := newFixture()
	f.index.upsertErr = types.IndexDimensionError("upsert", 768, 384)
	_, err := Ingest(context.Background(), f.ingestDeps(), IngestInput{FileName: "a.png", Data: pngBytes(t, 2)})
	if !errors.Is(err, types.ErrIndexDimension) {
		t.Fatalf("err: want ErrIndexDimension got=%v", err)
	}

	f = newFixture()
	f.index.upsertErr = errors.New("connection reset")
	_, err = Ingest(context.Background(), f.ingestDeps(), IngestInput{FileName: "a.png", Data: pngBytes(t, 2)})
	if got := types.KindOf(err); got != types.KindIndex {
		t.Fatalf("kind: want=%q got=%q", types.KindIndex, got)
	}
}

func TestIngestRejectsBadInputBeforeUpload(t *testing.T) {
	cases := []struct {
		name string
		in   IngestInput
	}{
		{name: "no name", in: IngestInput{Data: []byte{1}}},
		{name: "empty data", in: IngestInput{FileName: "a.png"}},
		{name: "gif bytes", in: IngestInput{FileName: "a.gif", Data: []byte("GIF89a\x01\x00\x01\x00")}},
		{name: "declared webp", in: IngestInput{FileName: "a.png", MimeType: "image/webp"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			in := tc.in
			if in.MimeType != "" {
				in.Data = pngBytes(t, 2)
			}
			_, err := Ingest(context.Background(), f.ingestDeps(), in)
			if !errors.Is(err, types.ErrInvalidArgument) {
				t.Fatalf("err: want ErrInvalidArgument got=%v", err)
			}
			if f.blob.calls != 0 {
				t.Fatalf("blob calls: want=0 got=%d", f.blob.calls)
			}
		})
	}
}

func TestIngestReplacePolicyRemovesStaleRecords(t *testing.T) {
	f := newFixture()
	deps := f.ingestDeps()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deps.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()

	first, err := Ingest(ctx, deps, IngestInput{FileName: "cat.png", Data: pngBytes(t, 2)})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := Ingest(ctx, deps, IngestInput{FileName: "cat.png", Data: pngBytes(t, 3)})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("re-ingestion must create a new id")
	}
	if second.Replaced != 1 {
		t.Fatalf("replaced: want=1 got=%d", second.Replaced)
	}
	if _, ok := f.index.recs[first.ID]; ok {
		t.Fatalf("stale record %s still indexed", first.ID)
	}
	if _, ok := f.index.recs[second.ID]; !ok {
		t.Fatalf("new record %s missing", second.ID)
	}
	if len(f.catalog.rows) != 1 {
		t.Fatalf("catalog rows: want=1 got=%d", len(f.catalog.rows))
	}
}

func TestIngestAppendPolicyKeepsEarlierRecords(t *testing.T) {
	f := newFixture()
	deps := f.ingestDeps()
	deps.Policy = ReingestAppend
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := Ingest(ctx, deps, IngestInput{FileName: "cat.png", Data: pngBytes(t, 2+i)}); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	if len(f.index.recs) != 2 || len(f.index.deletes) != 0 {
		t.Fatalf("append: recs=%d deletes=%d", len(f.index.recs), len(f.index.deletes))
	}
}

func TestIngestCatalogFailureDoesNotFailItem(t *testing.T) {
	f := newFixture()
	f.catalog.createErr = errors.New("db down")

	out, err := Ingest(context.Background(), f.ingestDeps(), IngestInput{FileName: "a.png", Data: pngBytes(t, 2)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if out.Stage != types.StageDone {
		t.Fatalf("stage: want=%q got=%q", types.StageDone, out.Stage)
	}
}

func stageStrings(in []types.Stage) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
