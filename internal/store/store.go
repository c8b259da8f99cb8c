// Package store persists transactions and detected subscription candidates
// in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/subwatch/subwatch/internal/engine"
)

// Review status of a stored candidate.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
)

// MethodManual marks candidates created by the user rather than the engine.
const MethodManual engine.DetectionMethod = "manual"

// ErrNotFound is returned when a candidate id does not exist.
var ErrNotFound = errors.New("candidate not found")

const dateLayout = time.RFC3339

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id           TEXT PRIMARY KEY,
	date         TEXT NOT NULL,
	amount       REAL NOT NULL,
	direction    TEXT NOT NULL,
	merchant     TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	merchant_key TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS subscription_candidates (
	id                       TEXT PRIMARY KEY,
	merchant_key             TEXT NOT NULL,
	merchant                 TEXT NOT NULL,
	category_id              TEXT NOT NULL DEFAULT '',
	estimated_monthly_amount REAL NOT NULL,
	frequency                TEXT NOT NULL,
	first_detected_date      TEXT NOT NULL,
	last_charge_date         TEXT NOT NULL,
	next_expected_date       TEXT NOT NULL,
	confidence_score         REAL NOT NULL,
	occurrence_count         INTEGER NOT NULL,
	average_amount           REAL NOT NULL,
	variance_percentage      REAL NOT NULL,
	signals                  TEXT NOT NULL DEFAULT '{}',
	detection_method         TEXT NOT NULL,
	pattern_type             TEXT NOT NULL DEFAULT '',
	reason                   TEXT NOT NULL DEFAULT '',
	sample_transactions      TEXT NOT NULL DEFAULT '[]',
	status                   TEXT NOT NULL DEFAULT 'pending',
	created_at               TEXT NOT NULL,
	updated_at               TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS candidate_transactions (
	candidate_id   TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	PRIMARY KEY (candidate_id, transaction_id)
);
CREATE INDEX IF NOT EXISTS idx_candidates_status ON subscription_candidates (status);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions (date);
`

// Store wraps the SQLite handle. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// StoredCandidate is an engine candidate with its persistence envelope.
type StoredCandidate struct {
	ID string `json:"id"`
	engine.Candidate
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CandidateUpdate holds the mutable candidate fields. Nil pointers leave the
// stored value untouched.
type CandidateUpdate struct {
	Merchant               *string           `json:"merchant,omitempty"`
	CategoryID             *string           `json:"categoryId,omitempty"`
	EstimatedMonthlyAmount *float64          `json:"estimatedMonthlyAmount,omitempty"`
	Frequency              *engine.Frequency `json:"frequency,omitempty"`
	NextExpectedDate       *time.Time        `json:"nextExpectedDate,omitempty"`
}

// StatusSummary aggregates candidates in one review status.
type StatusSummary struct {
	Count                int     `json:"count"`
	EstimatedMonthlyCost float64 `json:"estimatedMonthlyCost"`
}

// Summary is the per-status aggregation over all stored candidates.
type Summary struct {
	Pending   StatusSummary `json:"pending"`
	Confirmed StatusSummary `json:"confirmed"`
	Rejected  StatusSummary `json:"rejected"`
}

// Open opens (or creates) the SQLite database and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTransactions upserts normalized transactions by id.
func (s *Store) SaveTransactions(ctx context.Context, txs []engine.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO transactions
			(id, date, amount, direction, merchant, description, merchant_key, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		_, err := stmt.ExecContext(ctx,
			tx.ID, tx.Date.Format(dateLayout), tx.Amount, string(tx.Direction),
			tx.Merchant, tx.Description, tx.MerchantKey, tx.Category)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
		}
	}
	return dbTx.Commit()
}

// TransactionsByRange returns stored expense transactions with a date inside
// [from, to], oldest first.
func (s *Store) TransactionsByRange(ctx context.Context, from, to time.Time) ([]engine.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, amount, direction, merchant, description, merchant_key, category
		FROM transactions
		WHERE direction = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		string(engine.DirectionExpense), from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// StoreCandidates assigns each candidate a fresh id, persists it as pending
// and records the contributing transaction links, all in one transaction.
func (s *Store) StoreCandidates(ctx context.Context, candidates []engine.Candidate) ([]StoredCandidate, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback()

	now := time.Now().UTC()
	stored := make([]StoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		sc := StoredCandidate{
			ID:        uuid.NewString(),
			Candidate: c,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := insertCandidate(ctx, dbTx, sc); err != nil {
			return nil, err
		}
		stored = append(stored, sc)
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit candidates: %w", err)
	}
	return stored, nil
}

// CreateManualCandidate stores a user-entered candidate. It is confirmed
// from the start since the user asserted it exists.
func (s *Store) CreateManualCandidate(ctx context.Context, c engine.Candidate) (*StoredCandidate, error) {
	if c.DetectionMethod == "" {
		c.DetectionMethod = MethodManual
	}
	if c.Frequency == "" {
		c.Frequency = engine.FrequencyMonthly
	}
	now := time.Now().UTC()
	sc := StoredCandidate{
		ID:        uuid.NewString(),
		Candidate: c,
		Status:    StatusConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback()
	if err := insertCandidate(ctx, dbTx, sc); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit candidate: %w", err)
	}
	return &sc, nil
}

// CandidatesByStatus lists candidates with the given status, highest
// confidence first. Empty status lists everything.
func (s *Store) CandidatesByStatus(ctx context.Context, status string) ([]StoredCandidate, error) {
	query := selectCandidate + ` ORDER BY confidence_score DESC, created_at ASC`
	var args []any
	if status != "" {
		query = selectCandidate + ` WHERE status = ? ORDER BY confidence_score DESC, created_at ASC`
		args = append(args, status)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []StoredCandidate
	for rows.Next() {
		sc, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.attachContributingIDs(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CandidateByID fetches one candidate or ErrNotFound.
func (s *Store) CandidateByID(ctx context.Context, id string) (*StoredCandidate, error) {
	row := s.db.QueryRowContext(ctx, selectCandidate+` WHERE id = ?`, id)
	sc, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachContributingIDs(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// SetStatus moves a candidate to confirmed or rejected.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	if status != StatusConfirmed && status != StatusRejected && status != StatusPending {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscription_candidates SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(dateLayout), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCandidate applies the non-nil fields of the update and returns the
// refreshed record.
func (s *Store) UpdateCandidate(ctx context.Context, id string, upd CandidateUpdate) (*StoredCandidate, error) {
	sc, err := s.CandidateByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Merchant != nil {
		sc.Merchant = *upd.Merchant
	}
	if upd.CategoryID != nil {
		sc.CategoryID = *upd.CategoryID
	}
	if upd.EstimatedMonthlyAmount != nil {
		sc.EstimatedMonthlyAmount = *upd.EstimatedMonthlyAmount
	}
	if upd.Frequency != nil {
		sc.Frequency = *upd.Frequency
	}
	if upd.NextExpectedDate != nil {
		sc.NextExpectedDate = *upd.NextExpectedDate
	}
	sc.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE subscription_candidates SET
			merchant = ?, category_id = ?, estimated_monthly_amount = ?,
			frequency = ?, next_expected_date = ?, updated_at = ?
		WHERE id = ?`,
		sc.Merchant, sc.CategoryID, sc.EstimatedMonthlyAmount,
		string(sc.Frequency), sc.NextExpectedDate.Format(dateLayout),
		sc.UpdatedAt.Format(dateLayout), id)
	if err != nil {
		return nil, fmt.Errorf("update candidate: %w", err)
	}
	return sc, nil
}

// Summary aggregates count and estimated monthly cost per status.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(estimated_monthly_amount), 0)
		FROM subscription_candidates
		GROUP BY status`)
	if err != nil {
		return Summary{}, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var sum Summary
	for rows.Next() {
		var status string
		var agg StatusSummary
		if err := rows.Scan(&status, &agg.Count, &agg.EstimatedMonthlyCost); err != nil {
			return Summary{}, fmt.Errorf("scan summary: %w", err)
		}
		switch status {
		case StatusPending:
			sum.Pending = agg
		case StatusConfirmed:
			sum.Confirmed = agg
		case StatusRejected:
			sum.Rejected = agg
		}
	}
	return sum, rows.Err()
}

// TransactionsForCandidate returns the stored transactions linked to a
// candidate, oldest first.
func (s *Store) TransactionsForCandidate(ctx context.Context, id string) ([]engine.Transaction, error) {
	if _, err := s.CandidateByID(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.date, t.amount, t.direction, t.merchant, t.description, t.merchant_key, t.category
		FROM transactions t
		JOIN candidate_transactions ct ON ct.transaction_id = t.id
		WHERE ct.candidate_id = ?
		ORDER BY t.date ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query candidate transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

const selectCandidate = `
	SELECT id, merchant_key, merchant, category_id, estimated_monthly_amount,
		frequency, first_detected_date, last_charge_date, next_expected_date,
		confidence_score, occurrence_count, average_amount, variance_percentage,
		signals, detection_method, pattern_type, reason, sample_transactions,
		status, created_at, updated_at
	FROM subscription_candidates`

func insertCandidate(ctx context.Context, dbTx *sql.Tx, sc StoredCandidate) error {
	signals, err := json.Marshal(sc.Signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	samples, err := json.Marshal(sc.SampleTransactions)
	if err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO subscription_candidates
			(id, merchant_key, merchant, category_id, estimated_monthly_amount,
			 frequency, first_detected_date, last_charge_date, next_expected_date,
			 confidence_score, occurrence_count, average_amount, variance_percentage,
			 signals, detection_method, pattern_type, reason, sample_transactions,
			 status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.MerchantKey, sc.Merchant, sc.CategoryID, sc.EstimatedMonthlyAmount,
		string(sc.Frequency), sc.FirstDetectedDate.Format(dateLayout),
		sc.LastChargeDate.Format(dateLayout), sc.NextExpectedDate.Format(dateLayout),
		sc.ConfidenceScore, sc.OccurrenceCount, sc.AverageAmount, sc.VariancePercentage,
		string(signals), string(sc.DetectionMethod), sc.PatternType, sc.Reason,
		string(samples), sc.Status,
		sc.CreatedAt.Format(dateLayout), sc.UpdatedAt.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}

	for _, txID := range sc.ContributingTransactionIDs {
		_, err := dbTx.ExecContext(ctx, `
			INSERT OR IGNORE INTO candidate_transactions (candidate_id, transaction_id)
			VALUES (?, ?)`, sc.ID, txID)
		if err != nil {
			return fmt.Errorf("insert candidate link: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*StoredCandidate, error) {
	var sc StoredCandidate
	var frequency, method string
	var firstDetected, lastCharge, nextExpected, createdAt, updatedAt string
	var signals, samples string

	err := row.Scan(
		&sc.ID, &sc.MerchantKey, &sc.Merchant, &sc.CategoryID, &sc.EstimatedMonthlyAmount,
		&frequency, &firstDetected, &lastCharge, &nextExpected,
		&sc.ConfidenceScore, &sc.OccurrenceCount, &sc.AverageAmount, &sc.VariancePercentage,
		&signals, &method, &sc.PatternType, &sc.Reason, &samples,
		&sc.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan candidate: %w", err)
	}

	sc.Frequency = engine.Frequency(frequency)
	sc.DetectionMethod = engine.DetectionMethod(method)
	sc.FirstDetectedDate = parseStoredDate(firstDetected)
	sc.LastChargeDate = parseStoredDate(lastCharge)
	sc.NextExpectedDate = parseStoredDate(nextExpected)
	sc.CreatedAt = parseStoredDate(createdAt)
	sc.UpdatedAt = parseStoredDate(updatedAt)
	if err := json.Unmarshal([]byte(signals), &sc.Signals); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	if err := json.Unmarshal([]byte(samples), &sc.SampleTransactions); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}
	return &sc, nil
}

func (s *Store) attachContributingIDs(ctx context.Context, sc *StoredCandidate) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id FROM candidate_transactions
		WHERE candidate_id = ? ORDER BY transaction_id ASC`, sc.ID)
	if err != nil {
		return fmt.Errorf("query candidate links: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan candidate link: %w", err)
		}
		ids = append(ids, id)
	}
	sc.ContributingTransactionIDs = ids
	return rows.Err()
}

func scanTransactions(rows *sql.Rows) ([]engine.Transaction, error) {
	var out []engine.Transaction
	for rows.Next() {
		var tx engine.Transaction
		var date, direction string
		err := rows.Scan(&tx.ID, &date, &tx.Amount, &direction,
			&tx.Merchant, &tx.Description, &tx.MerchantKey, &tx.Category)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Date = parseStoredDate(date)
		tx.Direction = engine.Direction(direction)
		out = append(out, tx)
	}
	return out, rows.Err()
}

func parseStoredDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
