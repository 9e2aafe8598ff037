// Package all registers every built-in store backend: duckdb, postgres and
// redshift. Import it for side effects from binaries.
package all

import (
	_ "duckflow/internal/store/duckdb"
	_ "duckflow/internal/store/postgres"
)
