// Package dedupe remembers inbound request ids for a bounded window so a
// client retry of the same request does not start a second cycle.
//
// Keys are scoped per conversation with Key. A request that fails with a
// retryable error is released with Forget so the client may resend it.
package dedupe
