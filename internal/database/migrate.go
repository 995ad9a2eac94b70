// Package database はストアフロントのPostgreSQL接続とスキーマ管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema は前回のマイグレーションが途中で失敗し、手動の修復が必要な状態を表す。
var ErrDirtySchema = errors.New("schema is dirty: fix the failed migration and force the version before retrying")

// SchemaState はマイグレーション適用後のスキーマの状態。
type SchemaState struct {
	Version uint
	// Applied は今回の実行で1件以上のマイグレーションを適用したかどうか。
	Applied bool
}

// NewMigrator は埋め込みSQL(coupons, orders, payment_ordersなど)を読むmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded storefront migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、適用後のスキーマ状態を返す。
// dirtyなスキーマには何も適用せずErrDirtySchemaを返す。
func RunMigrations(databaseURL string) (SchemaState, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return SchemaState{}, err
	}
	defer m.Close()

	before, dirty, err := currentVersion(m)
	if err != nil {
		return SchemaState{}, err
	}
	if dirty {
		return SchemaState{Version: before}, fmt.Errorf("version %d: %w", before, ErrDirtySchema)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaState{Version: before}, fmt.Errorf("failed to apply storefront migrations: %w", err)
	}

	after, _, err := currentVersion(m)
	if err != nil {
		return SchemaState{}, err
	}
	return SchemaState{Version: after, Applied: after != before}, nil
}

// currentVersion は未初期化のスキーマをversion 0として扱う。
func currentVersion(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, dirty, nil
}
