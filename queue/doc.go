// Package queue defines the task queue abstraction with priority
// ordering, poll-based result and stream subscriptions, cooperative
// cancellation flags, and per-queue rate limiting.
//
// Queues are named channels of pending tasks. PublishTask appends to the
// back of a queue; priority tasks enqueue at the front, approximating
// priority ordering over plain FIFO. GetNextTask pops from the front.
//
// Subscriptions are bounded-interval poll loops rather than blocking
// receives, so the contract holds for backends that only expose
// request/response primitives. Delivery is at-least-once; handlers must
// be idempotent.
//
// Two interchangeable backends ship with the module: queue/memory
// (in-process, single node, no persistence) and queue/redis (durable,
// list-backed, TTL-based queue expiry).
//
// # Per-Queue Configuration
//
// Use [Config] to set per-queue rate limits and concurrency caps:
//
//	queue.Config{
//	    Name:           "review",
//	    MaxConcurrency: 5,      // max 5 concurrent review tasks
//	    RateLimit:      10,     // max 10 tasks/s dequeued from this queue
//	    RateBurst:      20,     // allow bursts up to 20
//	}
//
// [Manager] enforces the limits at dequeue time with a token-bucket rate
// limiter (golang.org/x/time/rate) and an active-count gate:
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(queueName) {
//	    defer m.Release(queueName)
//	    // process the task
//	}
//
// Queues without a [Config] have no limits beyond the pool-wide
// concurrency.
package queue
