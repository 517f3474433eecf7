package redis

// Redis key naming conventions for queue data.
// All keys are prefixed with "conveyor:" to avoid collisions.

const keyPrefix = "conveyor:"

// taskQueueKey returns the List key for a queue: conveyor:queue:{name}
func taskQueueKey(name string) string { return keyPrefix + "queue:" + name }

// resultsKey returns the List key for a handler's undelivered results:
// conveyor:results:{handlerID}
func resultsKey(handlerID string) string { return keyPrefix + "results:" + handlerID }

// cancelKey returns the flag key for a task's cooperative cancellation:
// conveyor:cancel:{taskID}
func cancelKey(taskID string) string { return keyPrefix + "cancel:" + taskID }

// streamKey returns the List key for a task's progress updates:
// conveyor:stream:{taskID}
func streamKey(taskID string) string { return keyPrefix + "stream:" + taskID }
