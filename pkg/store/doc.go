// Package store persists one instance state record per name, durably
// and atomically. Writers perform optimistic concurrency control: every
// save presents the fingerprint observed at load time, and a changed
// record on disk fails with a conflict instead of silently overwriting
// a concurrent modification. Loaders run every record through the state
// parser, so no caller ever sees unvalidated data.
package store
