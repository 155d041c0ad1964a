package log

import (
	"fmt"

	"uantap/pkg/appdir"
)

// DefaultDBPath is where <app>.db lives when no path is configured.
func DefaultDBPath(app string) (string, error) {
	return appdir.Path(fmt.Sprintf("%s.db", app))
}
