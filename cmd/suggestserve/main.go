/*
Command suggestserve serves ranked prefix suggestions.

Note: This is a BETA release. APIs and functionality may rapidly change.

Items (text, language and popularity) live in a store, either in memory or in
a SQLite file. An immutable index snapshot is built from the store and
answers prefix queries on every word of an item. Rebuilds swap the snapshot
atomically, so queries never see a half-built index.

# Usage

Start the HTTP gateway:

	suggestserve serve

Seed the store from a file and watch it for changes:

	suggestserve serve --seed items.tsv --watch

Serve MessagePack over stdin/stdout for editor integration:

	suggestserve ipc

Query interactively against the local store, or against a running gateway:

	suggestserve query --lang en
	suggestserve tui --addr http://127.0.0.1:8080

# Configuration

Runtime configuration is a TOML file. It is created with defaults on first
run at [UserConfigDir]/suggestserve/config.toml:

	[server]
	addr = "127.0.0.1:8080"
	max_query_runes = 256

	[engine]
	min_query_length = 2
	default_limit = 8
	max_limit = 32
	languages = ["en", "es", "de", "fr"]

	[ratelimit]
	requests_per_second = 20.0
	burst = 40

	[store]
	driver = "sqlite"
	path = "suggestserve.db"

# HTTP

	GET /v1/suggest?q=app&lang=en&limit=5

answers with

	{"query": "app", "suggestions": [{"id": 2, "text": "Apple Tart"}], "tookMs": 0.04}

Errors carry one of INVALID_QUERY, INVALID_FILTER, RATE_LIMITED or INTERNAL.
*/
package main

import (
	"os"
)

const (
	Version = "0.9.0-beta"
	AppName = "suggestserve"
	gh      = "https://github.com/bastiangx/suggestserve"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
