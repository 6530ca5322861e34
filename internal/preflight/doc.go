// Package preflight provides system validation and pre-flight checks
// to ensure ragcore can run successfully before starting operations.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory availability (minimum 1GB)
//   - Write permissions in project directory
//   - File descriptor limits (minimum 1024)
//   - Reachability of the configured embed/rerank model servers
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(preflight.WithEndpoints(cfg.Embed.Endpoint, cfg.Embed.RerankEndpoint))
//	results := checker.RunAll(ctx, "/path/to/project")
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
