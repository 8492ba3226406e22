// Package sqlite selects the SQLite driver used by the document store.
//
// Build modes:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): mattn/go-sqlite3
//
// Use Open() instead of sql.Open() to ensure the correct driver is used.
package sqlite

import (
	"database/sql"
	"strings"
)

// DriverName returns the registered database/sql driver name.
func DriverName() string {
	return driverName
}

// DriverType returns "cgo" for mattn/go-sqlite3 and "purego" for
// modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO returns true if the CGO implementation is being used.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens a SQLite database using the compiled-in driver. A "sqlite:"
// scheme prefix on dataSourceName is accepted and removed.
func Open(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open(driverName, TrimScheme(dataSourceName))
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY and keeps
	// ":memory:" databases alive across statements.
	db.SetMaxOpenConns(1)
	return db, nil
}

// TrimScheme removes a leading "sqlite://" or "sqlite:" from dsn.
func TrimScheme(dsn string) string {
	for _, p := range []string{"sqlite://", "sqlite:"} {
		if strings.HasPrefix(dsn, p) {
			return dsn[len(p):]
		}
	}
	return dsn
}

// Info contains information about the SQLite driver configuration.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
