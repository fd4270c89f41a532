// Package resilience protects shared infrastructure used by step executors.
//
//   - Bulkhead: caps how many callers hold a resource at once, e.g. how many
//     containers run against one Docker daemon.
//   - Retry: retries transient infrastructure calls, such as image pulls,
//     with exponential backoff.
//
// Steps themselves are never retried; a failed step is a result.
//
//	bh := resilience.NewBulkhead(resilience.BulkheadConfig{Name: "containers", MaxConcurrent: 4, MaxWait: resilience.WaitForever})
//	err := bh.Execute(ctx, func() error {
//	    return resilience.RetryFunc(ctx, resilience.DefaultRetryConfig(), pull)
//	})
package resilience
