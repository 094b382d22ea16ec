// Package tasks implements the list workflows that span more than one store call.
//
// # Operations
//
//  1. [Reconciler] : annotate a catalog batch with the viewer's list membership
//     - Loads both lists once, concurrently
//     - Builds "<mediaType>_<mediaId>" sets and tests each title against them
//     - Anonymous viewers get all-false flags without touching the store
//
//  2. [Ratings.Submit] : rate a title and promote it to the watched list
//     - Validates the rating (0 to 10 in half steps)
//     - Replaces the watched row, then removes the to-watch row
//     - The two writes are not transactional; a failed removal returns [shared.ErrPartialPromotion]
//
//  3. [Toggle] : add a title to a list, or remove it when already there
//
//  4. [KeyMigrator.Run] : one-time key migration
//     - Rewrites every row key to the configured scheme
//     - Stamps a media type on payloads that lack one
//     - Collapses rows that refer to the same title, keeping the newest
//
//  5. [ExportLists] : write both lists to disk with a poster download worker pool
//
// # Concurrency
//
// [ItemGuard] serializes mutations per (owner, list, title). A second toggle or rating for the
// same title while the first is in flight fails fast with [shared.ErrItemBusy].
//
// # Progress Reporting
//
// Long running operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
