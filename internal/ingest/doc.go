// Package ingest provides the alert-ingestion state machine: the persisted
// State and its Store interface, the pure Classify and Dispatch functions, the
// effect model handed to UI/OS sinks, and the Poller that sequences
// fetch -> classify -> apply -> perform for every tick.
package ingest
