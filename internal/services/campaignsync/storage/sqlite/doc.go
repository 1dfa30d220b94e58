// Package sqlite provides the event journal backed by SQLite.
//
// The journal holds an audit trail of realtime events; it can be deleted at
// any time without affecting campaign views.
package sqlite
