// Package state defines the versioned persisted record for a managed
// instance, the parser that validates untyped documents against it, and
// the builder that produces new records by deep-merging partial input
// over existing state and provider defaults.
//
// A record is the single source of truth for what infrastructure exists
// for one named instance. Parsing is all-or-nothing: a document either
// passes version gating, common-field validation and the provider- and
// configurator-specific sub-schemas, or it is rejected with every
// violated field reported. No caller ever sees a partially valid record.
package state
