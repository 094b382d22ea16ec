// Package services implements the external collaborators of the list service.
//
// # Catalog
//
// [TMDBClient] implements [Catalog]. Requests share a token bucket limiter, are retried with
// exponential backoff on 429 and 5xx responses, and are cached in per-class expiring LRUs:
// trending and search results for an hour, people for an hour, details for a day and external ids for a week.
// Concurrent identical requests are collapsed into one.
//
// # Identity
//
// Two [Authenticator] implementations exist:
//   - [GoTrueAuth] : the hosted auth server (password grant, signup, recovery, PKCE exchange)
//   - [LocalAuth] : accounts in the local database with bcrypt hashes and HS256 tokens
//
// [AuthState] keeps the current session of a client process, persists it, refreshes it and
// exposes it as an [oauth2.TokenSource] so the hosted row store can authenticate with it.
// It also implements [Viewer], the "who is signed in" capability handed to list consumers.
//
// # Hosted rows
//
// [RESTItemStore] implements models.ItemStore over the hosted REST interface. Keys and
// payload patterns are pushed into an or=() filter; exact matching happens client side.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrAPIRequest] : catalog or auth request failed
//   - [shared.ErrAuthFailed] : rejected credentials or code
//   - [shared.ErrNotAuthenticated] : missing or invalid access token
//   - [shared.ErrStore] : row store failure
//   - [shared.ErrConflict] : duplicate account or item key
package services
