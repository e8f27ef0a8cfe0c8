package schemas

import "context"

// -- Centralized Service Interfaces --

// CodeGenerator produces the source text of one test script.
type CodeGenerator interface {
	GenerateTest(ctx context.Context, req GenerationRequest) (string, error)
}

// RunLedger records executed batches.
type RunLedger interface {
	RecordRun(ctx context.Context, run RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
