package engine

import (
	"slices"

	"livetrade/internal/domain"
)

// AccountSnapshot is the adapter's cached view of the brokerage account.
// It is refreshed by the worker and read by callers through copies.
type AccountSnapshot struct {
	Status   domain.AccountStatus
	Desc     string
	Balance  []float64
	Holdings []domain.Holding
}

func newAccountSnapshot() AccountSnapshot {
	return AccountSnapshot{Status: domain.AccountIdle}
}

func (s *AccountSnapshot) setStatus(status domain.AccountStatus, desc string) {
	s.Status = status
	s.Desc = desc
}

// refresh replaces the cached balance and holdings. The slices are owned by
// the snapshot afterwards.
func (s *AccountSnapshot) refresh(balance []float64, holdings []domain.Holding) {
	s.Balance = balance
	s.Holdings = holdings
}

func (s *AccountSnapshot) holdingsCopy() []domain.Holding {
	return slices.Clone(s.Holdings)
}

func (s *AccountSnapshot) balanceCopy() []float64 {
	return slices.Clone(s.Balance)
}
