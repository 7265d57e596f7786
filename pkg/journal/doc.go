// Package journal persists lifecycle events to SQLite. The journal is
// an audit trail, not a source of truth: instance status is always
// derived from the state record, and a journal failure never fails the
// operation that produced the event.
package journal
