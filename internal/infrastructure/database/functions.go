package database

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered by this package. It is
// the stock go-sqlite3 driver plus every function added via RegisterFunction.
const DriverName = "sqlite3_facility"

var (
	functionsMu sync.RWMutex
	functions   = map[string]sqlFunction{}
)

type sqlFunction struct {
	impl any
	pure bool
}

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: registerFunctions,
	})
}

// RegisterFunction makes a Go function callable from SQL on every new
// connection. impl must satisfy go-sqlite3's RegisterFunc rules. pure marks
// the function deterministic so SQLite may cache results within a statement.
//
// Functions must be registered before the first connection is opened;
// call it from an init function.
func RegisterFunction(name string, impl any, pure bool) {
	functionsMu.Lock()
	defer functionsMu.Unlock()
	functions[name] = sqlFunction{impl: impl, pure: pure}
}

// RegisteredFunctions returns the names of all registered SQL functions, sorted.
func RegisteredFunctions() []string {
	functionsMu.RLock()
	defer functionsMu.RUnlock()
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func registerFunctions(conn *sqlite3.SQLiteConn) error {
	functionsMu.RLock()
	defer functionsMu.RUnlock()
	for name, fn := range functions {
		if err := conn.RegisterFunc(name, fn.impl, fn.pure); err != nil {
			return fmt.Errorf("registering sql function %s: %w", name, err)
		}
	}
	return nil
}
