// Package loader registers store drivers via blank imports.
// Import this package to ensure every built-in store driver is available.
//
// Usage in main.go:
//
//	import _ "github.com/artfolio/artfolio-sync/internal/platform/store/loader"
package loader

import (
	_ "github.com/artfolio/artfolio-sync/internal/platform/store/badger"
	_ "github.com/artfolio/artfolio-sync/internal/platform/store/json"
	_ "github.com/artfolio/artfolio-sync/internal/platform/store/memory"
	_ "github.com/artfolio/artfolio-sync/internal/platform/store/mirror"
	_ "github.com/artfolio/artfolio-sync/internal/platform/store/sqlite"
	_ "github.com/artfolio/artfolio-sync/internal/platform/store/valkey"
)
