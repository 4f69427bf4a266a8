// Package audit records the grant-change trail of quartermaster.
//
// Every mutation of project membership, the role/permission catalog and the
// assignment ledger emits an Event. There is no history table: the trail is
// whatever the configured Logger persists, normally structured JSON lines
// through StructuredLogger.
//
//	logger := audit.NewStructuredLogger(observability.NewLogger(observability.InfoLevel, os.Stdout))
//	ctx = audit.WithLogger(ctx, logger)
//
// Recorder keeps events in memory for tests.
package audit
