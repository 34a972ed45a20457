// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/printshop-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrStageNotFound возвращается, если этап с указанным идентификатором не найден.
var (
	ErrStageNotFound = errors.New("stage not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPaymentNotFound возвращается, если запись об оплате не найдена.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrVersionConflict возвращается, если запись была изменена параллельным
	// запросом между чтением и записью. Вызывающая сторона повторяет операцию.
	ErrVersionConflict = errors.New("record version conflict")
)

// PaymentFilter описывает условия выборки записей об оплате. Пустые поля
// означают отсутствие условия, заданные поля объединяются по И.
type PaymentFilter struct {
	Status  model.PaymentStatus
	OrderID int64
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим только сбои сериализации и дедлоки: переподключениями
		// при сетевых сбоях занимается сам pgxpool.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateStage сохраняет новый этап конвейера и заполняет его идентификатор,
// версию и время создания.
func (r *PostgresRepository) CreateStage(ctx context.Context, s *model.Stage) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO stages (name, rank, color_tag, qualified, state)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, version, created_at`,
		s.Name, s.Rank, s.ColorTag, s.Qualified, string(model.StageStateActive),
	).Scan(&s.ID, &s.Version, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}

	s.State = model.StageStateActive
	return nil
}

// GetStage возвращает этап по идентификатору.
func (r *PostgresRepository) GetStage(ctx context.Context, id int64) (*model.Stage, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, rank, color_tag, qualified, state, version, created_at
		 FROM stages
		 WHERE id = $1`,
		id,
	)

	var s model.Stage
	var state string
	err := row.Scan(&s.ID, &s.Name, &s.Rank, &s.ColorTag, &s.Qualified, &state, &s.Version, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStageNotFound
		}
		return nil, fmt.Errorf("get stage: %w", err)
	}

	s.State = model.StageState(state)
	return &s, nil
}

// UpdateStage сохраняет изменённый этап с проверкой версии. Если запись была
// изменена параллельно, возвращает ErrVersionConflict.
func (r *PostgresRepository) UpdateStage(ctx context.Context, s *model.Stage) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE stages
			 SET name = $3, rank = $4, color_tag = $5, qualified = $6, state = $7, version = version + 1
			 WHERE id = $1 AND version = $2`,
			s.ID, s.Version, s.Name, s.Rank, s.ColorTag, s.Qualified, string(s.State),
		)
		if err != nil {
			return fmt.Errorf("update stage: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			return r.missingOrConflict(ctx, "stages", s.ID, ErrStageNotFound)
		}

		s.Version++
		return nil
	})
}

// ArchiveStage помечает этап архивным. Операция идемпотентна: повторное
// архивирование уже архивного этапа не является ошибкой. Запись не удаляется.
func (r *PostgresRepository) ArchiveStage(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE stages
		 SET state = $2, version = version + 1
		 WHERE id = $1 AND state <> $2`,
		id, string(model.StageStateArchived),
	)
	if err != nil {
		return fmt.Errorf("archive stage: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		var exists bool
		err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stages WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check stage exists: %w", err)
		}
		if !exists {
			return ErrStageNotFound
		}
	}

	return nil
}

// ListActiveStages возвращает неархивные этапы, отсортированные по рангу.
// Равные ранги упорядочиваются по порядку создания.
func (r *PostgresRepository) ListActiveStages(ctx context.Context) ([]model.Stage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, rank, color_tag, qualified, state, version, created_at
		 FROM stages
		 WHERE state = $1
		 ORDER BY rank, id`,
		string(model.StageStateActive),
	)
	if err != nil {
		return nil, fmt.Errorf("select stages: %w", err)
	}
	defer rows.Close()

	var stages []model.Stage
	for rows.Next() {
		var s model.Stage
		var state string
		if err := rows.Scan(&s.ID, &s.Name, &s.Rank, &s.ColorTag, &s.Qualified, &state, &s.Version, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		s.State = model.StageState(state)
		stages = append(stages, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stages, nil
}

// CreateOrder атомарно сохраняет заказ вместе с его записью об оплате.
// Производные поля оплаты должны быть рассчитаны вызывающей стороной заранее.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order, p *model.Payment) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO orders (customer_id, customer_name, phone, product_type, size, quantity, photo_received, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id, order_date, version`,
			o.CustomerID, o.CustomerName, o.Phone, string(o.ProductType), o.Size, o.Quantity, o.PhotoReceived, string(o.Status),
		).Scan(&o.ID, &o.OrderDate, &o.Version)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO payments (order_id, advance, total, balance, status, mode, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, version, updated_at`,
			o.ID, p.AdvanceCents, p.TotalCents, p.BalanceCents, string(p.Status), p.Mode, p.Notes,
		).Scan(&p.ID, &p.Version, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		p.OrderID = o.ID

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, customer_name, phone, product_type, size, quantity, photo_received, status, order_date, delivery_date, version
		 FROM orders
		 WHERE id = $1`,
		id,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

// ListOrders возвращает все заказы, отсортированные от новых к старым.
func (r *PostgresRepository) ListOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_id, customer_name, phone, product_type, size, quantity, photo_received, status, order_date, delivery_date, version
		 FROM orders
		 ORDER BY order_date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var productType, status string
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.CustomerName, &o.Phone, &productType, &o.Size,
		&o.Quantity, &o.PhotoReceived, &status, &o.OrderDate, &o.DeliveryDate, &o.Version,
	)
	if err != nil {
		return nil, err
	}

	o.ProductType = model.ProductType(productType)
	o.Status = model.OrderStatus(status)
	return &o, nil
}

// UpdateOrderStatus сохраняет новый статус заказа с проверкой версии.
// Дата доставки записывается вместе со статусом в одном запросе.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, o *model.Order) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE orders
			 SET status = $3, delivery_date = $4, version = version + 1
			 WHERE id = $1 AND version = $2`,
			o.ID, o.Version, string(o.Status), o.DeliveryDate,
		)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			return r.missingOrConflict(ctx, "orders", o.ID, ErrOrderNotFound)
		}

		o.Version++
		return nil
	})
}

// GetPayment возвращает запись об оплате по идентификатору.
func (r *PostgresRepository) GetPayment(ctx context.Context, id int64) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, order_id, advance, total, balance, status, mode, notes, version, updated_at
		 FROM payments
		 WHERE id = $1`,
		id,
	)

	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}

	return p, nil
}

// UpdatePayment сохраняет изменённую запись об оплате с проверкой версии.
// Исходные и производные поля записываются одним запросом: читатель никогда
// не увидит запись с рассогласованными полями.
func (r *PostgresRepository) UpdatePayment(ctx context.Context, p *model.Payment) error {
	return r.withRetry(ctx, func() error {
		err := r.pool.QueryRow(ctx,
			`UPDATE payments
			 SET advance = $3, total = $4, balance = $5, status = $6, mode = $7, notes = $8, version = version + 1, updated_at = NOW()
			 WHERE id = $1 AND version = $2
			 RETURNING version, updated_at`,
			p.ID, p.Version, p.AdvanceCents, p.TotalCents, p.BalanceCents, string(p.Status), p.Mode, p.Notes,
		).Scan(&p.Version, &p.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.missingOrConflict(ctx, "payments", p.ID, ErrPaymentNotFound)
			}
			return fmt.Errorf("update payment: %w", err)
		}

		return nil
	})
}

// ListPayments возвращает записи об оплате по фильтру, отсортированные по
// времени последнего изменения от новых к старым.
func (r *PostgresRepository) ListPayments(ctx context.Context, filter PaymentFilter) ([]model.Payment, error) {
	query := `SELECT id, order_id, advance, total, balance, status, mode, notes, version, updated_at
	 FROM payments`

	var conds []string
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.OrderID != 0 {
		args = append(args, filter.OrderID)
		conds = append(conds, fmt.Sprintf("order_id = $%d", len(args)))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return payments, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	var status string
	err := row.Scan(
		&p.ID, &p.OrderID, &p.AdvanceCents, &p.TotalCents, &p.BalanceCents,
		&status, &p.Mode, &p.Notes, &p.Version, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = model.PaymentStatus(status)
	return &p, nil
}

// missingOrConflict различает отсутствие записи и конфликт версий после
// обновления, не затронувшего ни одной строки.
func (r *PostgresRepository) missingOrConflict(ctx context.Context, table string, id int64, notFound error) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s exists: %w", table, err)
	}

	if !exists {
		return notFound
	}

	return ErrVersionConflict
}
