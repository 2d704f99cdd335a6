// Package notifier provides the async outbound message pipeline.
//
// Fired reminders and other background sends are queued here and
// delivered by a small worker pool behind a token-bucket rate limit,
// with jittered retries on transient send failures.
//
// Delivery goes through a kit.Adapter implementation (the Telegram
// adapter in production), so nothing in this package is platform
// specific.
package notifier
