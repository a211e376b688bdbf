package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/stonebridge/drawledger/pkg/models"
)

// ErrNotFound indicates the requested loan or draw does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the interface for database operations on loans and draws.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)
	GetAllActiveLoans() ([]*models.Loan, error)

	CreateDraw(draw *models.Draw) error
	GetDraw(id uuid.UUID) (*models.Draw, error)
	UpdateDraw(draw *models.Draw) error
	GetDrawsForLoan(loanID uuid.UUID) ([]*models.Draw, error)
	GetFundedDrawsForLoan(loanID uuid.UUID) ([]*models.Draw, error)

	Close() error
}
