package migrations

import (
	"sync"

	"github.com/go-pg/migrations/v8"
)

// defaultDir is where the SQL migration files live relative to the
// repository root.
const defaultDir = "persistence/migrations"

var (
	sqlDiscoveryOnce sync.Once

	Collection = migrations.NewCollection()
)

func init() {
	Collection.DisableSQLAutodiscover(true)
	Collection.SetTableName("coingift.migrations")
}

// DiscoverSQLMigrations scans dir for migration files. Discovery runs at
// most once per process.
func DiscoverSQLMigrations(dir string) error {
	var err error

	sqlDiscoveryOnce.Do(func() {
		if dir == "" {
			dir = defaultDir
		}

		err = Collection.DiscoverSQLMigrations(dir)
	})

	return err
}

// Run runs command on the db. Supported commands are:
// - up [target] - runs all available migrations by default or up to target one if argument is provided.
// - down - reverts last migration.
// - reset - reverts all migrations.
// - version - prints current db version.
// - set_version - sets db version without running migrations.
func Run(db migrations.DB, a ...string) (int64, int64, error) {
	if err := DiscoverSQLMigrations(""); err != nil {
		return 0, 0, err
	}

	return Collection.Run(db, a...)
}
