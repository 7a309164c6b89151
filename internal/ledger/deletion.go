package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ssugameworks/invest-system-backend/internal/store"
)

// Refund describes one deleted user.
type Refund struct {
	UserID         int64  `json:"userId"`
	Message        string `json:"message"`
	RefundedAmount int64  `json:"refundedAmount"`
}

// BatchDetail is the per-user outcome of DeleteUsers.
type BatchDetail struct {
	UserID   int64  `json:"userId"`
	Refunded int64  `json:"refunded"`
	Error    string `json:"error,omitempty"`
}

// BatchResult summarizes DeleteUsers.
type BatchResult struct {
	DeletedCount int           `json:"deletedCount"`
	TotalRefund  int64         `json:"totalRefund"`
	Details      []BatchDetail `json:"details"`
}

// DeleteUser removes a user after returning its invested amounts to the
// teams it held: each team's inflow drops by the position's cost basis,
// floored at zero. Positions, history and the user go in the same
// transaction.
func (s *Service) DeleteUser(ctx context.Context, userID int64) (*Refund, error) {
	var out Refund
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		user, err := tx.LockUser(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return rejectf(KindInvalidTarget, "user %d does not exist", userID)
		}
		if err != nil {
			return err
		}

		// The user lock keeps trades off these positions; teams are locked
		// in id order to match concurrent trades.
		holdings, err := tx.ListHoldings(ctx, user.ID)
		if err != nil {
			return err
		}

		var refunded int64
		for _, h := range holdings {
			team, err := tx.LockTeam(ctx, h.TeamID)
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				return err
			default:
				money := team.Money - h.InvestedAmount
				if money < 0 {
					money = 0
				}
				if err := tx.SetTeamMoney(ctx, team.ID, money); err != nil {
					return err
				}
				refunded += h.InvestedAmount
			}
			if err := tx.DeletePosition(ctx, user.ID, h.TeamID); err != nil {
				return err
			}
		}

		if err := tx.DeleteUser(ctx, user.ID); err != nil {
			return err
		}

		out = Refund{
			UserID:         user.ID,
			Message:        fmt.Sprintf("user %s (%d) deleted", user.Name, user.SchoolNumber),
			RefundedAmount: refunded,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user deleted", "user_id", userID, "refunded", out.RefundedAmount)
	return &out, nil
}

// DeleteUsers deletes each user independently. A failure is logged and
// reported for that user without stopping the batch.
func (s *Service) DeleteUsers(ctx context.Context, userIDs []int64) BatchResult {
	result := BatchResult{Details: []BatchDetail{}}
	for _, id := range userIDs {
		refund, err := s.DeleteUser(ctx, id)
		if err != nil {
			s.logger.Error("user deletion failed", "user_id", id, "err", err)
			result.Details = append(result.Details, BatchDetail{UserID: id, Error: err.Error()})
			continue
		}
		result.DeletedCount++
		result.TotalRefund += refund.RefundedAmount
		result.Details = append(result.Details, BatchDetail{UserID: id, Refunded: refund.RefundedAmount})
	}
	return result
}
