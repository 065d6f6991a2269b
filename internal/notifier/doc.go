// Package notifier delivers run reports and summaries in the background.
//
// Notify only validates and queues. Workers rate limit, deduplicate and send
// through the channel's transport.Sender, retrying transient failures with
// exponential backoff behind a per-channel circuit breaker.
//
// Delivery is best-effort: failures are logged and published on the event
// bus, never returned to the code that produced the message.
//
// # History
//
// The service keeps a small in-memory history of recent deliveries for
// operator visibility.
package notifier
