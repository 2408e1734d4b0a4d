// Package retry runs a task until it succeeds, waiting between attempts
// with a capped exponential backoff.
package retry

import "context"

type (
	// Task is a function to retry. It returns whether a retry should occur
	// on the given error.
	Task = func(context.Context) (shouldRetry bool, err error)

	// Policy is the retry policy for task execution.
	Policy interface {
		Start(ctx context.Context, name string, task Task) error
	}
)
