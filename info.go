package anyclass

import (
	"time"

	"github.com/anyclass/anyclass/pkg/models"
)

// Version is reported by getServerInfo; override per build with
// -ldflags "-X github.com/anyclass/anyclass.Version=...".
var Version = "0.1.0"

func (d *Dispatcher) serverInfo() map[string]any {
	return map[string]any{
		"version":   d.version,
		"timestamp": time.Now().UTC().Format(models.TimeLayout),
		"features": map[string]any{
			"schemaInference":       true,
			"batchOperations":       true,
			"conjunctiveFilters":    true,
			"strictFilterOperators": !d.lenient,
			"legacySeedRecord":      d.legacy,
		},
	}
}

func healthPayload() map[string]any {
	return map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(models.TimeLayout),
	}
}
