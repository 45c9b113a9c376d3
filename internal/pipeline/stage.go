package pipeline

// Stage is one state of a pipeline run.
type Stage int

const (
	StageValidating Stage = iota
	StageUploading
	StageResolving
	StageDownloading
	StageAnalyzing
	StageTranslating
	StageSkipped
	StageCleaningUp
	StageDone
)

var stageNames = [...]string{
	StageValidating:  "validating",
	StageUploading:   "uploading",
	StageResolving:   "resolving",
	StageDownloading: "downloading",
	StageAnalyzing:   "analyzing",
	StageTranslating: "translating",
	StageSkipped:     "skipped",
	StageCleaningUp:  "cleaning_up",
	StageDone:        "done",
}

// String returns the snake_case stage name used in logs, metrics and stream
// events.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Observer receives stage transitions of a single run. Calls happen on the
// goroutine executing [Orchestrator.Process], in order.
type Observer interface {
	StageEntered(stage Stage)
}

// ObserverFunc adapts a plain function to [Observer].
type ObserverFunc func(Stage)

// StageEntered calls f(stage).
func (f ObserverFunc) StageEntered(stage Stage) { f(stage) }
