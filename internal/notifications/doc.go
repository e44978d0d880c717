// Package notifications delivers sync events via ntfy.
//
// NewService publishes to the topic URL configured in config.toml and
// degrades to a no-op when no topic is set. The [notifications] toggles
// silence success or failure events independently. Callers depend only on
// the Service interface.
package notifications
