// Package server exposes the list service over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so handlers read
// path values with [http.Request.PathValue].
//
// # Authentication
//
// [Authenticate] verifies a bearer token (or an access_token query parameter, for event streams)
// through the configured [services.Authenticator] and stores the identity on the request context.
// Requests without credentials are served anonymously: list reads are empty and writes answer 401.
//
// # Auth Callback
//
// [CallbackHandler] completes e-mail confirmation and password recovery links. It exchanges the
// code for a session and redirects to the same-site path in the next parameter.
//
// # Routes
//
//	GET    /api/health
//	POST   /api/auth/signin | signup | signout | reset
//	GET    /api/me
//	GET    /api/lists/{list}
//	POST   /api/lists/{list}
//	POST   /api/lists/{list}/toggle
//	DELETE /api/lists/{list}/{id}?type=&row=
//	GET    /api/lists/{list}/count
//	GET    /api/lists/{list}/count/stream   (server-sent events)
//	GET    /api/watched/{id}
//	POST   /api/ratings
//	GET    /api/catalog/trending | people | search?q=
//	GET    /api/catalog/{type}/{id}
//	GET    /api/catalog/collection/{id}
//	GET    /auth/callback?code=&next=
//
// Mutations of a title that already has one in flight answer 409.
package server
