package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	migrationsDir = "sql/migrations"
	// Ключ advisory lock, общий для всех экземпляров order-service.
	migrationLockKey  = int64(20931807)
	migrationLockWait = 5 * time.Second

	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

	ordersTable     = "orders"
	ownerIndexName  = "idx_orders_owner_id"
	migrationsTable = "schema_migrations"
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileRe = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

	errStoreNotInitialized = errors.New("postgres store is not initialized")
)

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m migration) script(direction migrationDirection) string {
	if direction == migrationDown {
		return m.Down
	}
	return m.Up
}

func (m migration) String() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// migrationSet упорядочен по возрастанию версии.
type migrationSet []migration

func (ms migrationSet) find(version int64) (migration, bool) {
	i := sort.Search(len(ms), func(i int) bool { return ms[i].Version >= version })
	if i < len(ms) && ms[i].Version == version {
		return ms[i], true
	}
	return migration{}, false
}

// pending возвращает ещё не применённые миграции; steps<=0 снимает ограничение.
func (ms migrationSet) pending(applied []int64, steps int) migrationSet {
	done := make(map[int64]struct{}, len(applied))
	for _, v := range applied {
		done[v] = struct{}{}
	}
	var out migrationSet
	for _, m := range ms {
		if _, ok := done[m.Version]; ok {
			continue
		}
		out = append(out, m)
		if steps > 0 && len(out) == steps {
			break
		}
	}
	return out
}

// rollback возвращает последние steps применённых миграций, начиная с самой новой.
func (ms migrationSet) rollback(applied []int64, steps int) (migrationSet, error) {
	var out migrationSet
	for i := len(applied) - 1; i >= 0 && len(out) < steps; i-- {
		m, ok := ms.find(applied[i])
		if !ok {
			return nil, fmt.Errorf("cannot rollback unknown migration version %d", applied[i])
		}
		out = append(out, m)
	}
	return out, nil
}

// SchemaState описывает состояние схемы заказов в базе.
type SchemaState struct {
	Version     int64
	Applied     int
	Pending     int
	OrdersTable bool
	OwnerIndex  bool
}

// Ready сообщает, что все миграции применены и объекты схемы на месте.
func (s SchemaState) Ready() bool {
	return s.Pending == 0 && s.OrdersTable && s.OwnerIndex
}

func (s SchemaState) String() string {
	return fmt.Sprintf("version=%d applied=%d pending=%d orders_table=%t owner_index=%t",
		s.Version, s.Applied, s.Pending, s.OrdersTable, s.OwnerIndex)
}

// MigrateUp применяет up-миграции; steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает steps миграций, минимум одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationDown, max(steps, 1))
}

// MigrationStatus читает состояние схемы без изменения базы.
func (s *Store) MigrationStatus(ctx context.Context) (SchemaState, error) {
	if s == nil || s.db == nil {
		return SchemaState{}, errStoreNotInitialized
	}
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		return SchemaState{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var state SchemaState
	if err := s.db.QueryRowContext(queryCtx, `
		SELECT to_regclass($1::text) IS NOT NULL,
		       to_regclass($2::text) IS NOT NULL
	`, ordersTable, ownerIndexName).Scan(&state.OrdersTable, &state.OwnerIndex); err != nil {
		return SchemaState{}, fmt.Errorf("inspect schema objects: %w", err)
	}

	var applied []int64
	var tracked bool
	if err := s.db.QueryRowContext(queryCtx, `SELECT to_regclass($1::text) IS NOT NULL`, migrationsTable).Scan(&tracked); err != nil {
		return SchemaState{}, fmt.Errorf("inspect migration table: %w", err)
	}
	if tracked {
		if applied, err = appliedVersions(queryCtx, s.db); err != nil {
			return SchemaState{}, err
		}
	}

	state.Applied = len(applied)
	if len(applied) > 0 {
		state.Version = applied[len(applied)-1]
	}
	state.Pending = len(migrations.pending(applied, 0))
	return state, nil
}

func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if direction != migrationUp && direction != migrationDown {
		return fmt.Errorf("unsupported migration direction: %s", direction)
	}
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
			return fmt.Errorf("ensure migration table: %w", err)
		}
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		batch := migrations.pending(applied, steps)
		if direction == migrationDown {
			if batch, err = migrations.rollback(applied, steps); err != nil {
				return err
			}
		}
		for _, m := range batch {
			if err := runMigration(ctx, conn, m, direction); err != nil {
				return err
			}
		}
		return nil
	})
}

// withMigrationLock выполняет fn на выделенном соединении под advisory lock,
// чтобы параллельно стартующие экземпляры не применяли миграции дважды.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockWait)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	return fn(conn)
}

func runMigration(ctx context.Context, conn *sql.Conn, m migration, direction migrationDirection) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", direction, m, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.script(direction)); err != nil {
		return fmt.Errorf("execute %s migration %s: %w", direction, m, err)
	}

	if direction == migrationUp {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, m, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, m, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// appliedVersions возвращает применённые версии по возрастанию.
func appliedVersions(ctx context.Context, q queryer) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

func parseMigrationFile(name string) (int64, string, migrationDirection, error) {
	parts := migrationFileRe.FindStringSubmatch(name)
	if parts == nil {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", name)
	}
	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || version <= 0 {
		return 0, "", "", fmt.Errorf("invalid migration version in %s", name)
	}
	return version, parts[2], migrationDirection(parts[3]), nil
}

// loadMigrations читает пары up/down из fsys. Каждая версия обязана иметь
// оба файла с непустым телом и одинаковым именем.
func loadMigrations(fsys fs.FS) (migrationSet, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, direction, err := parseMigrationFile(entry.Name())
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, m.Name, name)
		}
		target := &m.Up
		if direction == migrationDown {
			target = &m.Down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	set := make(migrationSet, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", *m)
		}
		set = append(set, *m)
	}
	sort.Slice(set, func(i, j int) bool { return set[i].Version < set[j].Version })
	return set, nil
}
