// Package notifications sends push notifications about publish progress
// through ntfy. When no topic is configured every notification is a no-op.
package notifications
