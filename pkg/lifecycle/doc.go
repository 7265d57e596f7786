// Package lifecycle drives instances through their lifecycle: first
// provision, updates, start/stop, configuration and destruction. It
// owns the ordering of provider calls and state persistence so that a
// crash at any point leaves a record that tells the truth about what
// was attempted.
package lifecycle
