package authstate

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// storedValue is one row of the key-value table backing BunStorage.
type storedValue struct {
	bun.BaseModel `bun:"table:session_kv,alias:skv"`
	Key           string    `bun:"key,pk" json:"key"`
	Value         []byte    `bun:"value,notnull" json:"value"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// BunStorage is a durable Storage over a two-column key-value table. Each
// operation runs a single local statement; the Storage contract is
// synchronous, so calls use a background context internally.
type BunStorage struct {
	db  *bun.DB
	now Clock
}

// NewBunStorage wraps an existing bun.DB. The session_kv table is created on
// first use if it does not exist.
func NewBunStorage(db *bun.DB) (*BunStorage, error) {
	s := &BunStorage{db: db, now: time.Now}

	_, err := db.NewCreateTable().
		Model((*storedValue)(nil)).
		IfNotExists().
		Exec(context.Background())
	if err != nil {
		return nil, err
	}

	return s, nil
}

// OpenSQLiteStorage opens (or creates) an SQLite-backed BunStorage at the
// given DSN. Use ":memory:" for throwaway stores.
func OpenSQLiteStorage(dsn string) (*BunStorage, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	return NewBunStorage(db)
}

func (s *BunStorage) Get(key string) ([]byte, bool, error) {
	rec := new(storedValue)
	err := s.db.NewSelect().
		Model(rec).
		Where("skv.key = ?", key).
		Scan(context.Background())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rec.Value, true, nil
}

func (s *BunStorage) Set(key string, value []byte) error {
	rec := &storedValue{
		Key:       key,
		Value:     value,
		UpdatedAt: s.now(),
	}

	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(context.Background())
	return err
}

func (s *BunStorage) Delete(key string) error {
	_, err := s.db.NewDelete().
		Model((*storedValue)(nil)).
		Where("skv.key = ?", key).
		Exec(context.Background())
	return err
}

// Close releases the underlying database handle.
func (s *BunStorage) Close() error {
	return s.db.Close()
}
