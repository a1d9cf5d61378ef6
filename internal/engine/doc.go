// Package engine defines the contract with the external inference engine and
// implements an HTTP client for a remote serving process. The engine accepts
// per-window generation requests carrying raw audio plus decoder seed tokens
// and returns finalized token-id sequences.
package engine
