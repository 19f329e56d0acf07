// Package pdfrag is a Go client for a pdfrag coordinator.
//
// Work is asynchronous: SendIngest and SendQuery submit an event and return its id,
// Wait polls the event's runs until the first one reaches a terminal status or the
// poll timeout elapses.
//
//	client := pdfrag.New(
//	    pdfrag.WithEventAPI("http://localhost:8080", "local"),
//	    pdfrag.WithTimeout(2*time.Minute),
//	)
//	if _, err := client.Ingest(ctx, "/srv/uploads/report.pdf", "report.pdf"); err != nil {
//	    return err
//	}
//	answer, err := client.Ask(ctx, "What does the report conclude?", 5)
//
// Wait never errors on a run that is still in progress; it returns a Result tagged
// Succeeded, Failed or TimedOut. Ingest and Ask turn the last two into
// *TimeoutError and *RunFailureError.
package pdfrag
