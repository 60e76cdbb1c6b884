package services

import "context"

// EmailJob carries a notification to be delivered by a background worker.
type EmailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ITaskQueue is the slice of the background task client the services need.
// Enqueueing is best effort: a failed enqueue is logged by the caller and
// never fails the request that triggered it.
type ITaskQueue interface {
	EnqueueReconcile(ctx context.Context) error
	EnqueueEmail(ctx context.Context, job EmailJob) error
	EnqueueImageResize(ctx context.Context, objectKey string) error
}
