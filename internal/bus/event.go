package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-separated namespaces:
//
//	table.<name>   a base table or view changed
//	api.*          a parsed server payload ready for ingestion
//	chat.*         outbox send progress (queued, ack, failed)
//	status.*       daemon lifecycle changes
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// TableKind returns the change-event kind for a table name.
func TableKind(table string) string {
	return "table." + table
}
