package domain

// Stage is a state of the per-image ingestion machine.
type Stage string

const (
	StageUploading  Stage = "uploading"
	StageCaptioning Stage = "captioning"
	StageEmbedding  Stage = "embedding"
	StageIndexing   Stage = "indexing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

var stageNext = map[Stage]Stage{
	StageUploading:  StageCaptioning,
	StageCaptioning: StageEmbedding,
	StageEmbedding:  StageIndexing,
	StageIndexing:   StageDone,
}

func (s Stage) Terminal() bool { return s == StageDone || s == StageFailed }

// Next returns the stage that follows s on the success path.
func (s Stage) Next() (Stage, bool) {
	n, ok := stageNext[s]
	return n, ok
}

// CanTransition reports whether from -> to is a legal edge. FAILED is reachable from
// every non-terminal stage; terminal stages have no outgoing edges.
func CanTransition(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	n, ok := stageNext[from]
	return ok && n == to
}
