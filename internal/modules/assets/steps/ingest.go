package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/observability"
	"github.com/yungbote/imagerag/internal/platform/ctxutil"
	"github.com/yungbote/imagerag/internal/platform/dbctx"
	"github.com/yungbote/imagerag/internal/platform/imaging"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

// StageObserver is told about every stage an item enters, including FAILED.
type StageObserver func(fileName string, from, to types.Stage)

type IngestDeps struct {
	Log       *logger.Logger
	Blob      BlobStore
	Captioner Captioner
	Embedder  Embedder
	Index     VectorIndex

	// Optional.
	Catalog  Catalog
	Policy   ReingestPolicy
	Observer StageObserver
	Now      func() time.Time
	NewID    func() string
}

type IngestInput struct {
	FileName string
	// MimeType may be empty; it is then taken from the extension or sniffed from Data.
	MimeType string
	Data     []byte
}

type IngestOutput struct {
	ID          string      `json:"id"`
	Caption     string      `json:"caption"`
	FileLocator string      `json:"file_locator"`
	FileName    string      `json:"file_name"`
	MimeType    string      `json:"mime_type"`
	Stage       types.Stage `json:"stage"`
	// Replaced counts earlier records for the same file name removed under ReingestReplace.
	Replaced int `json:"replaced,omitempty"`
}

// IngestError identifies the failing item and the stage that was running when it failed.
type IngestError struct {
	FileName string
	Stage    types.Stage
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %q failed during %s: %v", e.FileName, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

func (d IngestDeps) validate() error {
	if d.Log == nil || d.Blob == nil || d.Captioner == nil || d.Embedder == nil || d.Index == nil {
		return fmt.Errorf("ingest: missing deps")
	}
	return nil
}

// Ingest runs one image through UPLOADING -> CAPTIONING -> EMBEDDING -> INDEXING -> DONE.
// The first failing step moves the item to FAILED and nothing after it runs. There is no retry.
func Ingest(ctx context.Context, deps IngestDeps, in IngestInput) (IngestOutput, error) {
	if err := deps.validate(); err != nil {
		return IngestOutput{Stage: types.StageFailed}, err
	}
	ctx = ctxutil.Default(ctx)
	run := &ingestRun{deps: deps, fileName: strings.TrimSpace(in.FileName), stage: types.StageUploading}
	run.log = deps.Log.With("file_name", run.fileName, "request_id", ctxutil.RequestID(ctx))

	ctx, span := observability.Tracer().Start(ctx, "assets.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("asset.file_name", run.fileName), attribute.Int("asset.size_bytes", len(in.Data)))

	out, err := run.execute(ctx, in)
	span.SetAttributes(attribute.String("asset.stage", string(run.failedAt())))
	if metrics := observability.Current(); metrics != nil {
		if err != nil {
			metrics.ObserveIngestItem(string(types.StageFailed), string(types.KindOf(err)))
		} else {
			metrics.ObserveIngestItem(string(types.StageDone), "")
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(types.KindOf(err)))
		return out, err
	}
	return out, nil
}

type ingestRun struct {
	deps       IngestDeps
	log        *logger.Logger
	fileName   string
	stage      types.Stage
	lastActive types.Stage
	stageStart time.Time
}

func (r *ingestRun) now() time.Time {
	if r.deps.Now != nil {
		return r.deps.Now()
	}
	return time.Now().UTC()
}

func (r *ingestRun) newID() string {
	if r.deps.NewID != nil {
		return r.deps.NewID()
	}
	return uuid.NewString()
}

// failedAt is the last non-terminal stage the item was in.
func (r *ingestRun) failedAt() types.Stage {
	if r.stage == types.StageFailed {
		return r.lastActive
	}
	return r.stage
}

func (r *ingestRun) enter(to types.Stage) {
	from := r.stage
	if !types.CanTransition(from, to) {
		r.log.Error("illegal ingest transition", "from", from, "to", to)
		return
	}
	if metrics := observability.Current(); metrics != nil && !r.stageStart.IsZero() {
		status := "ok"
		if to == types.StageFailed {
			status = "failed"
		}
		metrics.ObserveIngestStage(string(from), status, time.Since(r.stageStart))
	}
	r.lastActive = from
	r.stage = to
	r.stageStart = time.Now()
	if r.deps.Observer != nil {
		r.deps.Observer(r.fileName, from, to)
	}
	r.log.Debug("ingest stage", "from", from, "to", to)
}

func (r *ingestRun) fail(err error) (IngestOutput, error) {
	at := r.stage
	r.enter(types.StageFailed)
	r.log.Warn("ingest failed", "stage", at, "kind", types.KindOf(err), "error", err)
	return IngestOutput{FileName: r.fileName, Stage: types.StageFailed}, &IngestError{FileName: r.fileName, Stage: at, Err: err}
}

func (r *ingestRun) execute(ctx context.Context, in IngestInput) (IngestOutput, error) {
	r.stageStart = time.Now()
	if r.deps.Observer != nil {
		r.deps.Observer(r.fileName, "", types.StageUploading)
	}

	// UPLOADING
	mime, err := resolveMime(r.fileName, in.MimeType, in.Data)
	if err != nil {
		return r.fail(err)
	}
	locator, err := r.deps.Blob.Store(ctx, in.Data, r.fileName, mime)
	if err != nil {
		return r.fail(ensureKind(err, types.KindStorage, "blob.store"))
	}
	if strings.TrimSpace(locator) == "" {
		return r.fail(types.StorageError("blob.store", nil, "upload returned no locator"))
	}
	r.enter(types.StageCaptioning)

	// CAPTIONING
	caption, err := r.deps.Captioner.Caption(ctx, in.Data, mime)
	if err != nil {
		return r.fail(ensureKind(err, types.KindCaption, "captioner.caption"))
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return r.fail(types.CaptionError("captioner.caption", nil, "empty caption"))
	}
	r.enter(types.StageEmbedding)

	// EMBEDDING
	vec, err := r.deps.Embedder.Embed(ctx, caption)
	if err != nil {
		return r.fail(ensureKind(err, types.KindEmbedding, "embedder.embed"))
	}
	if want := r.deps.Embedder.Dimension(); len(vec) != want {
		return r.fail(types.EmbeddingError("embedder.embed", nil, "vector dimension mismatch: expected=%d got=%d", want, len(vec)))
	}
	r.enter(types.StageIndexing)

	// INDEXING
	rec := types.AssetRecord{
		ID:          r.newID(),
		Vector:      vec,
		Caption:     caption,
		FileLocator: locator,
		FileName:    r.fileName,
		MimeType:    mime,
		CreatedAt:   r.now(),
	}
	if err := r.deps.Index.Upsert(ctx, rec); err != nil {
		return r.fail(ensureKind(err, types.KindIndex, "index.upsert"))
	}
	r.enter(types.StageDone)

	out := IngestOutput{
		ID:          rec.ID,
		Caption:     rec.Caption,
		FileLocator: rec.FileLocator,
		FileName:    rec.FileName,
		MimeType:    rec.MimeType,
		Stage:       types.StageDone,
	}
	out.Replaced = r.recordAndReplace(ctx, rec, len(in.Data))
	r.log.Info("ingest done", "asset_id", rec.ID, "replaced", out.Replaced)
	return out, nil
}

// recordAndReplace writes the catalog row and, under ReingestReplace, removes records with the
// same file name created before this one. The item is already DONE; failures here are logged only.
func (r *ingestRun) recordAndReplace(ctx context.Context, rec types.AssetRecord, size int) int {
	if r.deps.Catalog == nil {
		return 0
	}
	dbc := dbctx.Context{Ctx: ctx}
	row, err := assetRow(rec, size)
	if err != nil {
		r.log.Warn("catalog row build failed", "asset_id", rec.ID, "error", err)
		return 0
	}
	if _, err := r.deps.Catalog.Create(dbc, []*types.Asset{row}); err != nil {
		r.log.Warn("catalog write failed", "asset_id", rec.ID, "error", err)
		return 0
	}
	if r.deps.Policy == ReingestAppend {
		return 0
	}

	prior, err := r.deps.Catalog.ListByFileName(dbc, rec.FileName)
	if err != nil {
		r.log.Warn("catalog lookup failed; stale records kept", "error", err)
		return 0
	}
	// Compare against our row as stored so both sides carry the catalog's time precision.
	self := row
	for _, p := range prior {
		if p != nil && p.ID == row.ID {
			self = p
			break
		}
	}
	var staleIDs []string
	var staleRows []uuid.UUID
	for _, p := range prior {
		if p == nil || !olderAsset(p, self) {
			continue
		}
		staleIDs = append(staleIDs, p.ID.String())
		staleRows = append(staleRows, p.ID)
	}
	if len(staleIDs) == 0 {
		return 0
	}
	if err := r.deps.Index.Delete(ctx, staleIDs); err != nil {
		r.log.Warn("stale vector cleanup failed", "stale_ids", staleIDs, "error", err)
		return 0
	}
	if err := r.deps.Catalog.DeleteByIDs(dbc, staleRows); err != nil {
		r.log.Warn("stale catalog cleanup failed", "stale_ids", staleIDs, "error", err)
	}
	return len(staleIDs)
}

// olderAsset orders rows by creation time, then id. Only strictly older rows are stale, so
// concurrent ingests of one name never remove each other's newer record.
func olderAsset(a, b *types.Asset) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func resolveMime(fileName, declared string, data []byte) (string, error) {
	if fileName == "" {
		return "", types.InvalidArgument("ingest", "file name is required")
	}
	if len(data) == 0 {
		return "", types.InvalidArgument("ingest", "image %q is empty", fileName)
	}
	sniffed, err := imaging.Sniff(data)
	if err != nil {
		return "", types.InvalidArgument("ingest", "image %q: %v", fileName, err)
	}
	if declared = strings.TrimSpace(declared); declared != "" && !imaging.Supported(declared) {
		return "", types.InvalidArgument("ingest", "image %q: declared type %s is not JPEG or PNG", fileName, declared)
	}
	return sniffed, nil
}

// ensureKind keeps an adapter's own domain error; anything else is wrapped as kind.
func ensureKind(err error, kind types.ErrorKind, op string) error {
	var de *types.Error
	if errors.As(err, &de) {
		return err
	}
	return &types.Error{Kind: kind, Op: op, Cause: err}
}
