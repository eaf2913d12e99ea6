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
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/gymmaster/internal/billing"
	"github.com/mmeshcher/gymmaster/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrMemberNotFound возвращается, если участник не найден.
	ErrMemberNotFound = errors.New("member not found")
	// ErrPersistence оборачивает ошибки хранилища при записи платежа; транзакция при этом откатывается.
	ErrPersistence = errors.New("persistence failure")
)

// ApplyFunc вычисляет платёж и новую дату оплаты для заблокированного участника.
type ApplyFunc func(m model.Member) (model.Payment, time.Time, error)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
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

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

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

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// toCents отклоняет суммы, которые нельзя сохранить в BIGINT без искажения.
func toCents(v float64) (int64, error) {
	c, ok := billing.ToCents(v)
	if !ok {
		return 0, fmt.Errorf("%w: %v", billing.ErrInvalidAmount, v)
	}
	return c, nil
}

func fromCents(v int64) float64 {
	return billing.FromCents(v)
}

const memberColumns = `id, name, phone, email, birth_date, enrolled_at, due_date, status, plan, plan_price, notes`

func scanMember(row pgx.Row) (model.Member, error) {
	var (
		m      model.Member
		status string
		plan   string
		price  int64
	)

	err := row.Scan(&m.ID, &m.Name, &m.Phone, &m.Email, &m.BirthDate, &m.EnrolledAt, &m.DueDate, &status, &plan, &price, &m.Notes)
	if err != nil {
		return model.Member{}, err
	}

	m.Status = model.Status(status)
	m.Plan = model.Plan(plan)
	m.PlanPrice = fromCents(price)

	return m, nil
}

// CreateMember сохраняет нового участника и возвращает его с присвоенным идентификатором.
func (r *PostgresRepository) CreateMember(ctx context.Context, m model.Member) (model.Member, error) {
	price, err := toCents(m.PlanPrice)
	if err != nil {
		return model.Member{}, err
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO members (name, phone, email, birth_date, enrolled_at, due_date, status, plan, plan_price, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+memberColumns,
		m.Name, m.Phone, m.Email, m.BirthDate, m.EnrolledAt, m.DueDate, string(m.Status), string(m.Plan), price, m.Notes,
	)

	created, err := scanMember(row)
	if err != nil {
		return model.Member{}, fmt.Errorf("create member: %w", err)
	}
	return created, nil
}

// UpdateMember обновляет профиль участника. Дата оплаты и дата регистрации не изменяются.
func (r *PostgresRepository) UpdateMember(ctx context.Context, m model.Member) (model.Member, error) {
	price, err := toCents(m.PlanPrice)
	if err != nil {
		return model.Member{}, err
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE members
		 SET name = $2, phone = $3, email = $4, birth_date = $5, plan = $6, plan_price = $7, notes = $8, status = $9
		 WHERE id = $1
		 RETURNING `+memberColumns,
		m.ID, m.Name, m.Phone, m.Email, m.BirthDate, string(m.Plan), price, m.Notes, string(m.Status),
	)

	updated, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Member{}, ErrMemberNotFound
		}
		return model.Member{}, fmt.Errorf("update member: %w", err)
	}
	return updated, nil
}

// GetMember возвращает участника по идентификатору.
func (r *PostgresRepository) GetMember(ctx context.Context, id int64) (model.Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)

	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Member{}, ErrMemberNotFound
		}
		return model.Member{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListMembers возвращает всех участников, упорядоченных по имени.
func (r *PostgresRepository) ListMembers(ctx context.Context) ([]model.Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var res []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteMember удаляет участника вместе со всеми его платежами.
func (r *PostgresRepository) DeleteMember(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE member_id = $1`, id); err != nil {
		return fmt.Errorf("delete payments: %w", err)
	}

	cmdTag, err := tx.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// ListPayments возвращает платежи участника или все платежи, если memberID не задан.
func (r *PostgresRepository) ListPayments(ctx context.Context, memberID *int64) ([]model.Payment, error) {
	query := `SELECT id, member_id, paid_at, amount, reference_period, method, notes FROM payments`
	args := []any{}
	if memberID != nil {
		query += ` WHERE member_id = $1`
		args = append(args, *memberID)
	}
	query += ` ORDER BY paid_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		var (
			p      model.Payment
			amount int64
		)
		if err := rows.Scan(&p.ID, &p.MemberID, &p.PaidAt, &amount, &p.ReferencePeriod, &p.Method, &p.Notes); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Amount = fromCents(amount)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// RecordPayment в одной транзакции блокирует строку участника, вычисляет платёж через apply,
// сохраняет платёж и переносит дату оплаты. Блокировка сериализует платежи одного участника.
func (r *PostgresRepository) RecordPayment(ctx context.Context, memberID int64, apply ApplyFunc) (model.Payment, error) {
	var res model.Payment

	err := r.withRetry(ctx, func() error {
		p, err := r.recordPayment(ctx, memberID, apply)
		if err != nil {
			return err
		}
		res = p
		return nil
	})

	return res, err
}

func (r *PostgresRepository) recordPayment(ctx context.Context, memberID int64, apply ApplyFunc) (model.Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Payment{}, fmt.Errorf("%w: begin tx: %w", ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	m, err := scanMember(tx.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE`, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Payment{}, ErrMemberNotFound
		}
		return model.Payment{}, fmt.Errorf("%w: lock member for update: %w", ErrPersistence, err)
	}

	p, dueDate, err := apply(m)
	if err != nil {
		return model.Payment{}, err
	}

	amount, err := toCents(p.Amount)
	if err != nil {
		return model.Payment{}, err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO payments (member_id, paid_at, amount, reference_period, method, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		memberID, p.PaidAt, amount, p.ReferencePeriod, p.Method, p.Notes,
	).Scan(&p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return model.Payment{}, ErrMemberNotFound
		}
		return model.Payment{}, fmt.Errorf("%w: insert payment: %w", ErrPersistence, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE members SET due_date = $2 WHERE id = $1`, memberID, dueDate); err != nil {
		return model.Payment{}, fmt.Errorf("%w: update due date: %w", ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Payment{}, fmt.Errorf("%w: commit tx: %w", ErrPersistence, err)
	}

	p.MemberID = memberID
	return p, nil
}

// UpdateStatuses записывает пересчитанные статусы участников для отображения.
func (r *PostgresRepository) UpdateStatuses(ctx context.Context, statuses map[int64]model.Status) error {
	if len(statuses) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for id, st := range statuses {
		batch.Queue(`UPDATE members SET status = $2 WHERE id = $1`, id, string(st))
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update statuses: %w", err)
	}

	return nil
}

// GetConfig возвращает значение параметра конфигурации и признак его наличия.
func (r *PostgresRepository) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM config WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get config: %w", err)
	}
	return value, true, nil
}

// SetConfig создаёт или обновляет параметр конфигурации.
func (r *PostgresRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO config (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// EnsureConfig записывает значение параметра, только если он ещё не задан.
func (r *PostgresRepository) EnsureConfig(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO config (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("ensure config: %w", err)
	}
	return nil
}
