// Package app is the composition root of the shelf console.
//
// # Overview
//
// Run loads the configuration, opens the debug log, builds the cache and
// session backends the config names, and connects them through one
// api.Client and one library.Service. It then restores any persisted
// session, starts the background poller and hands everything to the UI.
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()          config file + SHELF_* env
//	       ├─────> newLogger()            JSON records to the log file
//	       ├─────> wire()                 cache, session storage, client, service
//	       ├─────> Service.Restore()      verify the stored session in background
//	       ├─────> Poller.Start()         catalog + my loans into state.Store
//	       ├─────> watchEvents()          event stream kicks the poller
//	       └─────> ui.Run()               blocks until quit
//
// # Polling Behavior
//
// The poller fetches one catalog page and, when signed in, the user's open
// loans. A failed poll records the error in the store and doubles the wait
// before the next one, capped at five minutes. Kick forces an immediate
// poll; the console uses it after writes.
//
// # Error Channels
//
// The client's observer forwards every classified failure to a buffered
// channel the console drains into toasts. A failed token refresh clears the
// session and signals the console to show the login form. Both sends drop
// when the buffer is full rather than block a request.
package app
