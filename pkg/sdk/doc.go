// Package supportgraph is a Go client for the supportgraph ops API.
//
// The worker exposes synchronous job submission, job lookup, related-entity
// search and suggestion listing over HTTP:
//
//	client, _ := supportgraph.New("http://localhost:8080",
//	    supportgraph.WithAPIKey(os.Getenv("OPS_API_KEY")),
//	)
//	report, err := client.SubmitJob(ctx, []string{"c-101", "c-102"}, nil)
//	if errors.Is(err, supportgraph.ErrJobFailed) {
//	    log.Println("job failed:", report.Error)
//	}
//	similar, _ := client.Similar(ctx, "c-101", supportgraph.SimilarQuery{Limit: 5})
//
// Errors returned by the server unwrap to the package sentinels, so callers
// can branch with errors.Is.
package supportgraph
