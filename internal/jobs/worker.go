package jobs

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker for ingestion jobs.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(IngestEntryWorkflow)
	w.RegisterWorkflow(DeleteEntryWorkflow)
	w.RegisterWorkflow(ResyncEntryWorkflow)
	w.RegisterActivity(IngestActivity)
	w.RegisterActivity(DeleteActivity)
	w.RegisterActivity(ResyncActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}
