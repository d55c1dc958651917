// Package loader triggers service registration via blank imports.
// Import this package to ensure all services are registered with the registry.
package loader

import (
	// Import services here to trigger their init() registration.
	_ "github.com/artfolio/artfolio-sync/internal/services/api"
)
