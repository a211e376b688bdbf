package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stonebridge/drawledger/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// Decimal fields are stored as TEXT so no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		project_key TEXT NOT NULL,
		loan_amount TEXT NOT NULL,
		interest_rate_annual TEXT NOT NULL,
		origination_fee_pct TEXT NOT NULL,
		fee_escalation_pct TEXT NOT NULL DEFAULT '0.0025',
		base_fee_months INTEGER NOT NULL DEFAULT 6,
		extension_start_month INTEGER NOT NULL DEFAULT 13,
		loan_term_months INTEGER NOT NULL DEFAULT 12,
		document_fee TEXT NOT NULL DEFAULT '1000',
		start_date DATETIME,
		maturity_date DATETIME,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS draws (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		draw_number INTEGER NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		request_date DATETIME NOT NULL,
		funded_date DATETIME,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE INDEX IF NOT EXISTS idx_draws_loan ON draws(loan_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Columns added after the initial release; ignore duplicates.
	columns := []string{
		"fee_escalation_pct TEXT NOT NULL DEFAULT '0.0025'",
		"base_fee_months INTEGER NOT NULL DEFAULT 6",
		"extension_start_month INTEGER NOT NULL DEFAULT 13",
		"loan_term_months INTEGER NOT NULL DEFAULT 12",
		"document_fee TEXT NOT NULL DEFAULT '1000'",
	}
	for _, col := range columns {
		if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE loans ADD COLUMN %s", col)); err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
	}

	return nil
}

// isDuplicateColumnError checks if the error indicates a duplicate column.
func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(err.Error(), "duplicate column name")
}

const loanColumns = `id, project_key, loan_amount, interest_rate_annual, origination_fee_pct, fee_escalation_pct, base_fee_months, extension_start_month, loan_term_months, document_fee, start_date, maturity_date, status, created_at, updated_at`

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.ProjectKey, loan.LoanAmount, loan.InterestRateAnnual, loan.OriginationFeePct,
		loan.FeeEscalationPct, loan.BaseFeeMonths, loan.ExtensionStartMonth, loan.LoanTermMonths, loan.DocumentFee,
		loan.StartDate, loan.MaturityDate, loan.Status, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	result, err := s.db.Exec(
		`UPDATE loans SET project_key = ?, loan_amount = ?, interest_rate_annual = ?, origination_fee_pct = ?,
		fee_escalation_pct = ?, base_fee_months = ?, extension_start_month = ?, loan_term_months = ?, document_fee = ?,
		start_date = ?, maturity_date = ?, status = ?, updated_at = ? WHERE id = ?`,
		loan.ProjectKey, loan.LoanAmount, loan.InterestRateAnnual, loan.OriginationFeePct,
		loan.FeeEscalationPct, loan.BaseFeeMonths, loan.ExtensionStartMonth, loan.LoanTermMonths, loan.DocumentFee,
		loan.StartDate, loan.MaturityDate, loan.Status, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan %s: %w", loan.ID, ErrNotFound)
	}
	return nil
}

// DeleteLoan removes a loan and its draws from the database within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM draws WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated draws: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	return s.scanLoans(rows)
}

// GetAllActiveLoans retrieves all active loans.
func (s *SQLiteStore) GetAllActiveLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT `+loanColumns+` FROM loans WHERE status = ?`, models.LoanStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to get active loans: %w", err)
	}
	defer rows.Close()

	return s.scanLoans(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(r rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr string
	var startDate, maturityDate sql.NullTime
	var created, updated time.Time

	err := r.Scan(&idStr, &loan.ProjectKey, &loan.LoanAmount, &loan.InterestRateAnnual, &loan.OriginationFeePct,
		&loan.FeeEscalationPct, &loan.BaseFeeMonths, &loan.ExtensionStartMonth, &loan.LoanTermMonths, &loan.DocumentFee,
		&startDate, &maturityDate, &loan.Status, &created, &updated)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.CreatedAt = created
	loan.UpdatedAt = updated
	if startDate.Valid {
		loan.StartDate = &startDate.Time
	}
	if maturityDate.Valid {
		loan.MaturityDate = &maturityDate.Time
	}
	return &loan, nil
}

func (s *SQLiteStore) scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// CreateDraw inserts a new draw into the database.
func (s *SQLiteStore) CreateDraw(draw *models.Draw) error {
	_, err := s.db.Exec(
		`INSERT INTO draws (id, loan_id, draw_number, amount, status, request_date, funded_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		draw.ID.String(), draw.LoanID.String(), draw.DrawNumber, draw.Amount, draw.Status,
		draw.RequestDate, draw.FundedDate, draw.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create draw: %w", err)
	}
	return nil
}

// GetDraw retrieves a draw by its ID.
func (s *SQLiteStore) GetDraw(id uuid.UUID) (*models.Draw, error) {
	row := s.db.QueryRow(`SELECT id, loan_id, draw_number, amount, status, request_date, funded_date, created_at FROM draws WHERE id = ?`, id.String())
	draw, err := scanDraw(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("draw %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get draw: %w", err)
	}
	return draw, nil
}

// UpdateDraw updates an existing draw in the database.
func (s *SQLiteStore) UpdateDraw(draw *models.Draw) error {
	result, err := s.db.Exec(
		`UPDATE draws SET draw_number = ?, amount = ?, status = ?, request_date = ?, funded_date = ? WHERE id = ?`,
		draw.DrawNumber, draw.Amount, draw.Status, draw.RequestDate, draw.FundedDate, draw.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update draw: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("draw %s: %w", draw.ID, ErrNotFound)
	}
	return nil
}

// GetDrawsForLoan retrieves all draws for a given loan, oldest first.
func (s *SQLiteStore) GetDrawsForLoan(loanID uuid.UUID) ([]*models.Draw, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, draw_number, amount, status, request_date, funded_date, created_at
		FROM draws WHERE loan_id = ? ORDER BY draw_number ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get draws for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	return scanDraws(rows)
}

// GetFundedDrawsForLoan retrieves the funded draws for a loan, oldest first.
// These are the only draws that participate in interest accrual.
func (s *SQLiteStore) GetFundedDrawsForLoan(loanID uuid.UUID) ([]*models.Draw, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, draw_number, amount, status, request_date, funded_date, created_at
		FROM draws WHERE loan_id = ? AND status = ? ORDER BY funded_date ASC, draw_number ASC`, loanID.String(), models.DrawStatusFunded)
	if err != nil {
		return nil, fmt.Errorf("failed to get funded draws for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	return scanDraws(rows)
}

func scanDraw(r rowScanner) (*models.Draw, error) {
	var draw models.Draw
	var idStr, loanIDStr string
	var fundedDate sql.NullTime
	var requestDate, created time.Time

	err := r.Scan(&idStr, &loanIDStr, &draw.DrawNumber, &draw.Amount, &draw.Status, &requestDate, &fundedDate, &created)
	if err != nil {
		return nil, err
	}
	draw.ID = uuid.MustParse(idStr)
	draw.LoanID = uuid.MustParse(loanIDStr)
	draw.RequestDate = requestDate
	draw.CreatedAt = created
	if fundedDate.Valid {
		draw.FundedDate = &fundedDate.Time
	}
	return &draw, nil
}

func scanDraws(rows *sql.Rows) ([]*models.Draw, error) {
	var draws []*models.Draw
	for rows.Next() {
		draw, err := scanDraw(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draw row: %w", err)
		}
		draws = append(draws, draw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return draws, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
