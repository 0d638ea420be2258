// Package notify is the change notifier: a registry mapping resource
// addresses to the listeners interested in them.
//
// The registry is owned by whoever composes the provider and its
// subscriptions (see internal/addressbook); there is no process-wide
// instance.
//
// # Matching
//
// Publish(a) reaches every subscription bound to exactly a, plus every
// subscription bound to the collection address of a's table. A write to
// contacts/7 therefore refreshes both "contacts/7" and "contacts"
// watchers, while an insert (published as "contacts") refreshes only
// collection watchers.
//
// # Concurrency
//
// Subscribe, Unsubscribe and Publish are serialized by one mutex.
// Listeners are invoked while it is held, in registration order, which
// gives each listener events in publish order. Listeners must therefore
// return quickly and must not call back into the Notifier.
package notify
