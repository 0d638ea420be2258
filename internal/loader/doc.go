// Package loader implements live query subscriptions.
//
// A Loader is bound to one resource address. Start registers it with the
// change notifier and queries the address on a worker goroutine; every
// matching change event queues one more query. Each completed query replaces
// the previous result and is handed to the consumer's callback.
//
// State machine:
//
//	Idle -> Loading -> Delivered -> (Loading -> Delivered)* -> TornDown
//
// A failed query moves the loader to Failed instead of Delivered; the next
// change event retries. Teardown is valid from any state. Once it returns,
// the callback is never invoked again and any query still in flight has its
// result dropped.
package loader
