// Package jobs runs ingestion work as Temporal workflows: one workflow per
// added, deleted or resynced entry. Callers must serialize jobs touching the
// same entry id; jobs for different entries run fully in parallel.
package jobs

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/quiltai/quilt/internal/pipeline"
)

// EntryInput holds the parameters of one ingestion job.
type EntryInput struct {
	EntryID    string
	IndexName  string
	ContentKey string

	// Documents is the extractor output for this entry.
	Documents []pipeline.SourceDocument

	// OldStoreIDs are the previously recorded ids, used by delete and
	// resync.
	OldStoreIDs []string
}

// EntryOutput is the serializable job result reported back to the caller.
type EntryOutput struct {
	Status    pipeline.Status
	StoreIDs  []string
	SizeBytes int64
	Error     string
}

// ingestTimeout is the wall-clock deadline on one entry's ingestion: the
// embedding retrier bounds per-call latency but not the total retried
// duration, so the whole add is capped here.
const ingestTimeout = 30 * time.Minute

// IngestEntryWorkflow ingests one entry.
func IngestEntryWorkflow(ctx workflow.Context, input EntryInput) (*EntryOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: ingestTimeout,
		HeartbeatTimeout:    2 * time.Minute,
	})

	var out EntryOutput
	if err := workflow.ExecuteActivity(ctx, IngestActivity, input).Get(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteEntryWorkflow removes one entry's stored documents.
func DeleteEntryWorkflow(ctx workflow.Context, input EntryInput) (*EntryOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
	})

	var out EntryOutput
	if err := workflow.ExecuteActivity(ctx, DeleteActivity, input).Get(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResyncEntryWorkflow refreshes one entry: best-effort delete, fresh ingest.
func ResyncEntryWorkflow(ctx workflow.Context, input EntryInput) (*EntryOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: ingestTimeout,
		HeartbeatTimeout:    2 * time.Minute,
	})

	var out EntryOutput
	if err := workflow.ExecuteActivity(ctx, ResyncActivity, input).Get(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
