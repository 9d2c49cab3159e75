// Package config loads the shelf client configuration.
//
// # Overview
//
// Settings come from three layers, later layers winning:
//
//  1. Built-in defaults, chosen by mode (development or production)
//  2. The TOML file at ~/.config/shelf/config.toml (or an explicit path)
//  3. SHELF_API_URL, SHELF_ENV and SHELF_DEBUG from the environment
//
// A missing config file is not an error. The client works out of the box
// against a development server on localhost.
//
// # Mode Defaults
//
//	development  http://localhost:5000/api        30s timeout, debug log on
//	production   https://library.example.com/api  10s timeout, debug log off
//
// # TOML Format
//
//	env = "production"
//	api_url = "https://books.example.org/api"
//	timeout = "15s"
//	debug = true
//	log_file = "~/.local/state/shelf/shelf.log"
//	poll_seconds = 60
//
//	[cache]
//	backend = "redis"          # memory (default), redis or none
//	redis_addr = "127.0.0.1:6379"
//	prefix = "shelf:cache"
//
//	[session]
//	backend = "file"           # file (default), redis or memory
//	path = "~/.config/shelf/session.toml"
//
// Every field is optional. Paths get tilde expansion.
//
// # Error Handling
//
// Load fails on unreadable files, TOML syntax errors, unknown modes or
// backends, and malformed durations or booleans. It never fails because a
// file is absent.
package config
