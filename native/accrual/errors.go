package accrual

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNilState            = errors.New("accrual: state not configured")
	ErrNilVault            = errors.New("accrual: vault not configured")
	ErrNilTreasury         = errors.New("accrual: treasury not configured")
	ErrOutsidePeriod       = errors.New("accrual: interaction outside the reward period")
	ErrZeroAmount          = errors.New("accrual: amount must be positive")
	ErrZeroAddress         = errors.New("accrual: zero address")
	ErrInsufficientBalance = errors.New("accrual: insufficient balance")
	ErrFundingShortfall    = errors.New("accrual: treasury funding shortfall")
	ErrReentrantCall       = errors.New("accrual: re-entrant call rejected")
)

func insufficientBalance(requested, max *big.Int) error {
	return fmt.Errorf("%w: requested %s, max %s", ErrInsufficientBalance, requested, max)
}
