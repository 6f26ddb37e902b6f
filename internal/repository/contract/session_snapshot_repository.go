package contract

import "filings-rag-be/pkg/session"

// SessionSnapshotRepository persists session records in Postgres.
type SessionSnapshotRepository interface {
	session.Persister
}
