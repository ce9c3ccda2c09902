package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/Renal37/storefront/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrTxConflict: транзакция прервана из-за взаимной блокировки или ожидания блокировки.
	ErrTxConflict = errors.New("транзакция прервана из-за конфликта блокировок")
)

type Database struct {
	db  *pgxpool.Pool
	dsn string
}

// DBExecutor: общий интерфейс пула и транзакции pgx.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Tx: операции, которые выполняются внутри одной транзакции.
type Tx interface {
	FindProduct(ctx context.Context, productID int64) (*ProductDB, error)
	HasPaidOrderWithPromo(ctx context.Context, email, phone string, exceptOrderID int64) (bool, error)
	LockBuyer(ctx context.Context, email, phone string) error
	LockPromo(ctx context.Context, code string) (*PromoDB, error)
	IncrementPromoUsage(ctx context.Context, code string) error
	InsertOrder(ctx context.Context, order OrderDB) (*OrderDB, error)
	TransitionOrder(ctx context.Context, orderID int64, from, to OrderStatusDB) (*OrderDB, error)
	LockStock(ctx context.Context, productID int64, size string) (int, error)
	DecrementStock(ctx context.Context, productID int64, size string, quantity int) error
}

// queries реализует SQL-операции поверх пула или транзакции.
type queries struct {
	db DBExecutor
}

//go:embed migrations/*
var migrationsFS embed.FS // Встраивание файлов миграций

// checkConnection проверяет доступность базы данных с использованием пулa подключений.
func checkConnection(ctx context.Context, db *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("не удалось подключиться к базе данных: %w", err)
	}

	return nil
}

// New создает пул подключений и проверяет его. Пул закрывается через Close при остановке сервиса.
func New(ctx context.Context, dsn string) (*Database, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании пула подключений: %w", err)
	}

	if err := checkConnection(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db, dsn: dsn}, nil
}

// RunMigrations выполняет миграции базы данных с использованием встроенных файлов миграций.
func (d *Database) RunMigrations() error {
	driver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("не удалось создать источник миграций: %w", err)
	}

	migrations, err := migrate.NewWithSourceInstance("iofs", driver, d.dsn)
	if err != nil {
		return fmt.Errorf("не удалось инициализировать миграции: %w", err)
	}
	defer migrations.Close()

	err = migrations.Up()
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Log.Info("no new migrations found")
			return nil
		}
		return fmt.Errorf("ошибка при выполнении миграций: %w", err)
	}

	logger.Log.Info("migrations applied")
	return nil
}

// InTx выполняет fn в транзакции. Если fn вернула ошибку, транзакция откатывается.
func (d *Database) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := d.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	// После Commit откат ничего не делает.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&queries{db: tx}); err != nil {
		return classifyError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("не удалось зафиксировать транзакцию: %w", classifyError(err))
	}

	return nil
}

// Close закрывает пул подключений к базе данных.
func (d *Database) Close() {
	if d.db != nil {
		d.db.Close()
	}
}

func (d *Database) pool() *queries {
	return &queries{db: d.db}
}

// classifyError помечает ошибки блокировок Postgres как ErrTxConflict.
func classifyError(err error) error {
	var e *pgconn.PgError
	if errors.As(err, &e) {
		switch e.Code {
		case pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable, pgerrcode.SerializationFailure:
			return fmt.Errorf("%w: %s", ErrTxConflict, e.Message)
		}
	}
	return err
}
