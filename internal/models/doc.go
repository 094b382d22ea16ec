// Package models defines domain entities and persistence interfaces for the vibewatch list service.
//
// The package contains three categories of types:
//
// 1. Catalog DTOs: read-only metadata from the catalog service
//   - [Media] : a movie or TV title as returned by list endpoints
//   - [Details] : a title with appended credits, images, videos, keywords, external ids and related titles
//   - [Person] : a popular person with their known-for titles
//
// 2. List storage: rows of the shared user_items table and their views
//   - [SavedItem] : one stored row (owner, list kind, item key, JSON payload)
//   - [Payload] : the denormalized catalog snapshot written into a row
//   - [ListEntry] : the flattened view model returned by list queries
//   - [KeyMatch] : the multi-scheme matcher used for lookups and deletes
//
// 3. Identity: [User] (local accounts), [Identity], [Session] and [Profile].
//
// [ItemStore] is the row store capability implemented over SQL and over the hosted REST API.
// [Repository] defines standard CRUD operations for persistent entities such as [User].
package models
