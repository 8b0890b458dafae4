// Package cli is the interactive field agent.
//
// It wires configuration, the local store, the network monitor, the worker
// client, the upload queue and the sync uploader, then runs a REPL that
// accepts processing and maintenance commands while the background loops
// (connectivity checks, periodic sync, queue reconciliation) keep running.
//
// See App.Run and runREPL.
package cli
