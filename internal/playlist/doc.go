// Package playlist owns the two halves of the channel's shared source of
// truth: entry classification and the versioned playlist file.
//
// Classify is the only place in the repository that decides what a playlist
// line means. Every caller that needs "is this an episode" goes through it;
// nothing else re-implements the rule.
//
// Store wraps the on-disk playlist. The file's modification time is the
// version used for optimistic-concurrency checks, and every write is an
// atomic replace so readers never observe a half-written playlist.
package playlist
