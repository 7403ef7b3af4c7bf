// Package source provides the gateway's root policy.
//
// A Source holds the currently installed policy tree behind an atomic
// pointer. Reloads build a complete new tree and swap it in; calls already in
// flight finish on the tree they started with.
//
// FileSource reads a YAML or JSON document from disk and, while Watch runs,
// reloads it on fsnotify events after a debounce period. StoreSource fetches
// a named document from a control.ConfigStore, retrying transient store
// failures, and refreshes it on a cron schedule and on store change
// notifications. In both, a document that fails to load is reported and the
// previous tree stays installed.
package source
