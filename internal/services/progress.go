package services

// Stage is a step of one ingestion call.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageAnalyzing  Stage = "analyzing"
	StageUploading  Stage = "uploading"
	StagePersisting Stage = "persisting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ProgressFunc receives advisory status messages in stage order.
type ProgressFunc func(stage Stage, message string)

func (p ProgressFunc) report(stage Stage, message string) {
	if p != nil {
		p(stage, message)
	}
}

// ProgressLog collects progress messages, e.g. to return them in a response.
type ProgressLog struct {
	Messages []string
}

// Func returns a ProgressFunc appending to the log.
func (l *ProgressLog) Func() ProgressFunc {
	return func(_ Stage, message string) {
		l.Messages = append(l.Messages, message)
	}
}
