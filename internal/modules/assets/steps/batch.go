package steps

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	types "github.com/yungbote/imagerag/internal/domain"
)

type IngestBatchDeps struct {
	Ingest IngestDeps
	// Concurrency bounds in-flight items; <= 0 means 1.
	Concurrency int
	// Limiter throttles item starts when set.
	Limiter *rate.Limiter
}

// ItemResult is the outcome of one batch item: either an id and caption, or a failure kind.
type ItemResult struct {
	Index       int             `json:"index"`
	FileName    string          `json:"file_name"`
	ID          string          `json:"id,omitempty"`
	Caption     string          `json:"caption,omitempty"`
	FileLocator string          `json:"file_locator,omitempty"`
	Replaced    int             `json:"replaced,omitempty"`
	Stage       types.Stage     `json:"state"`
	FailedStage types.Stage     `json:"failed_stage,omitempty"`
	ErrorKind   types.ErrorKind `json:"error_kind,omitempty"`
	Error       string          `json:"error,omitempty"`

	err error
}

func (r ItemResult) OK() bool { return r.Stage == types.StageDone }

// Err returns the originating error for failed items.
func (r ItemResult) Err() error { return r.err }

type BatchReport struct {
	Items      []ItemResult `json:"items"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

func (b BatchReport) Succeeded() []ItemResult {
	out := []ItemResult{}
	for _, it := range b.Items {
		if it.OK() {
			out = append(out, it)
		}
	}
	return out
}

func (b BatchReport) Failed() []ItemResult {
	out := []ItemResult{}
	for _, it := range b.Items {
		if !it.OK() {
			out = append(out, it)
		}
	}
	return out
}

// IngestBatch runs every item through its own state machine. A failed item never stops the
// others; Items keeps the input order.
func IngestBatch(ctx context.Context, deps IngestBatchDeps, items []IngestInput) BatchReport {
	report := BatchReport{Items: make([]ItemResult, len(items)), StartedAt: time.Now().UTC()}
	limit := deps.Concurrency
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range items {
		g.Go(func() error {
			report.Items[i] = ingestOne(gctx, deps, i, items[i])
			// never abort siblings
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now().UTC()
	return report
}

func ingestOne(ctx context.Context, deps IngestBatchDeps, index int, in IngestInput) ItemResult {
	res := ItemResult{Index: index, FileName: in.FileName}
	if deps.Limiter != nil {
		if err := deps.Limiter.Wait(ctx); err != nil {
			res.Stage = types.StageFailed
			res.FailedStage = types.StageUploading
			res.ErrorKind = types.KindOf(err)
			res.Error = err.Error()
			res.err = err
			return res
		}
	}
	out, err := Ingest(ctx, deps.Ingest, in)
	if err != nil {
		res.Stage = types.StageFailed
		res.ErrorKind = types.KindOf(err)
		res.Error = err.Error()
		res.err = err
		if ie, ok := err.(*IngestError); ok {
			res.FailedStage = ie.Stage
			res.FileName = ie.FileName
		}
		return res
	}
	res.ID = out.ID
	res.Caption = out.Caption
	res.FileLocator = out.FileLocator
	res.FileName = out.FileName
	res.Replaced = out.Replaced
	res.Stage = types.StageDone
	return res
}
