package serp

import "context"

// API abstracts the remote search-results service. Implementations attach
// auth, build URLs, decode envelopes into tagged outcomes, and retry
// transient server errors internally; callers only see outcomes and
// transport-level errors.
type API interface {
	// SubmitImmediate runs one Live-mode request and returns its result.
	SubmitImmediate(ctx context.Context, job KeywordJob) (SubmitOutcome, error)
	// EnqueueBatch submits jobs as queued tasks. One outcome per job, in order.
	EnqueueBatch(ctx context.Context, jobs []KeywordJob) ([]EnqueueOutcome, error)
	// ListReadyTasks returns the ids of queued tasks ready for retrieval.
	ListReadyTasks(ctx context.Context) ([]string, error)
	// FetchTaskResult retrieves the result of one queued task.
	FetchTaskResult(ctx context.Context, taskID string) (FetchOutcome, error)
}

// Publisher pushes run-completion notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
