// Package store persists the bot's state in SQLite.
//
// Three tables are kept:
//
//   - channels: Slack channels the digest is posted to
//   - messages: one row per posted message, keyed by (week, channel,
//     position) and carrying the Slack ts and the posted plain text
//   - cooldowns: expiry times for rate-limited slash commands
//
// Weeks are stored as "2006-01-02" strings so that ordering and age
// comparisons can be done in SQL.
package store
