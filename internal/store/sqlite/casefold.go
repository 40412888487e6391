package sqlite

import (
	"database/sql/driver"

	"golang.org/x/text/cases"
	"modernc.org/sqlite"
)

// SQLite's built-in lower() and LIKE only fold ASCII. casefold gives
// searches full Unicode case-insensitivity.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("casefold", 1, casefoldFunc)
}

func casefoldFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return foldString(v), nil
	case []byte:
		return foldString(string(v)), nil
	default:
		return v, nil
	}
}

// foldString applies Unicode case folding. A Caser holds state, so a new
// one is created per call rather than shared across connections.
func foldString(s string) string {
	return cases.Fold().String(s)
}
