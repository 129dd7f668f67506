// Package all registers every storage backend with the factory. Import it
// for side effects from binaries that select the backend at runtime.
package all

import (
	_ "chatdb/internal/storage/mongodb"
	_ "chatdb/internal/storage/mssql"
	_ "chatdb/internal/storage/postgres"
	_ "chatdb/internal/storage/sqlite"
)
