// Package probe performs the canary's write-then-read round trip against a
// key-value server and classifies the result. See Executor.Execute.
package probe
