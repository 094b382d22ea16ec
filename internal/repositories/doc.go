// Package repositories implements list and account persistence.
//
// Rows live in a single user_items table keyed by (user_id, item_key). [SQLItemStore] reads and
// writes it directly over database/sql with either the sqlite3 or pgx driver; the hosted backend
// swaps in the REST store from the services package behind the same [models.ItemStore] interface.
//
// Key Implementations:
//   - [ListRepository] : add, remove, query and lookup for the to-watch and watched lists
//   - [SQLItemStore] : the row store over sqlite or Postgres
//   - [UserRepository] : local accounts with email lookups and soft deletes
//   - [Feed] : in-process change notifications for list subscribers
//
// Keys are written with the repository's [models.KeyScheme]; lookups and deletes match every
// historical key shape plus the payload id so rows written by older clients are still found.
package repositories
