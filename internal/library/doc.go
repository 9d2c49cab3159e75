// Package library exposes the library service as typed resource clients.
//
// # Overview
//
// Four clients share one call path:
//
//	Books   catalog listing, search, categories, CRUD, bulk import
//	Issues  borrowing, returning, renewing, loan listings
//	Admin   statistics and user management
//	Auth    login, registration, token refresh, logout
//
// Every method builds an api.Request, sends it through the api.Client and
// returns Result[T]{Data, Pagination} or the classified error unchanged.
//
// # Caching
//
// Reads consult the response cache first unless the request sets SkipCache,
// and store the raw body only after a 2xx response. Writes (POST, PUT, PATCH,
// DELETE) drop every cached read under the resource prefix, so a PUT to
// /books/7 clears every /books entry. Issue and return also clear /books
// because availability changes. Login and logout clear everything.
//
// # Retry
//
// Requests with MaxRetries > 0 run under the retry policy, retrying only
// transient failures. Books.Import opts each create in; nothing else does.
//
// # Availability
//
// Issues.Issue does not check availableQuantity locally. The service rejects
// an issue with no copies left and the classified Conflict or Validation
// error is returned to the caller.
//
// # Service
//
// Service bundles the clients with the session store and implements
// api.Authenticator: Refresh exchanges the stored refresh token for a new
// access token, and AuthFailed logs the session out and fires the
// navigation callback.
package library
