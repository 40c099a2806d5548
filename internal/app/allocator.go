package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"roomstay/internal/adapters/observability"
	"roomstay/internal/domain"
)

// Allocator turns "N rooms of type T for [a,b)" into N concrete per-room
// holds, or none at all. Correctness rests on the ledger's guarded
// decrement: two racers for the last unit of a room-night cannot both see
// the guard hold, so exactly one wins. No in-process lock is taken.
type Allocator struct {
	ledger domain.InventoryLedger
}

func NewAllocator(ledger domain.InventoryLedger) *Allocator {
	return &Allocator{ledger: ledger}
}

// Reserve holds one unit of each of the first `rooms` candidate rooms for
// the stay. If any hold fails the rooms already held in this attempt are
// released immediately and the whole reservation fails as an inventory
// conflict; a partial hold never escapes this function. The candidate
// pre-check is advisory only — availability can change between the check
// and the hold, so the guarded decrement remains the source of truth.
func (a *Allocator) Reserve(ctx context.Context, roomTypeID int64, stay domain.StayRange, rooms, guestsPerRoom int) ([]domain.RoomCandidate, error) {
	cands, err := a.ledger.CandidateRooms(ctx, roomTypeID, stay, guestsPerRoom)
	if err != nil {
		return nil, fmt.Errorf("candidate rooms: %w", err)
	}
	if len(cands) < rooms {
		return nil, domain.ErrInsufficientInventory
	}

	held := make([]domain.RoomCandidate, 0, rooms)
	for _, c := range cands[:rooms] {
		applied, err := a.ledger.Hold(ctx, c.ID, stay, 1)
		if err != nil || !applied {
			if relErr := a.ReleaseRooms(ctx, roomIDs(held), stay); relErr != nil {
				log.Error().Err(relErr).Bool("alert", true).
					Msg("hold rollback failed, ledger may be inconsistent")
			}
			if err != nil {
				observability.ObserveHold("error")
				return nil, fmt.Errorf("hold room %d: %w", c.ID, err)
			}
			observability.ObserveHold("conflict")
			return nil, domain.ErrInsufficientInventory
		}
		observability.ObserveHold("held")
		held = append(held, c)
	}
	return held, nil
}

// ReleaseRooms is the compensating increment for a prior Reserve. Callers
// own the bookkeeping of which holds are outstanding; releasing a set twice
// would double-credit the ledger.
func (a *Allocator) ReleaseRooms(ctx context.Context, ids []int64, stay domain.StayRange) error {
	var errs []error
	for _, id := range ids {
		if err := a.ledger.Release(ctx, id, stay, 1); err != nil {
			errs = append(errs, err)
			continue
		}
		observability.ObserveRelease()
	}
	if len(errs) > 0 {
		observability.ObserveRollbackFailure()
		return errors.Join(errs...)
	}
	return nil
}

// RestoreHolds re-acquires previously released holds (the reverse direction
// of compensation, used when a date change fails halfway). A restore can
// itself lose the race for the freed inventory; that is the one case the
// design cannot self-heal and it is surfaced for alerting.
func (a *Allocator) RestoreHolds(ctx context.Context, ids []int64, stay domain.StayRange) error {
	var errs []error
	for _, id := range ids {
		applied, err := a.ledger.Hold(ctx, id, stay, 1)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore hold room %d: %w", id, err))
			continue
		}
		if !applied {
			errs = append(errs, fmt.Errorf("restore hold room %d: inventory reclaimed by another booking", id))
		}
	}
	if len(errs) > 0 {
		observability.ObserveRollbackFailure()
		return errors.Join(errs...)
	}
	return nil
}

func roomIDs(rooms []domain.RoomCandidate) []int64 {
	out := make([]int64, len(rooms))
	for i, r := range rooms {
		out[i] = r.ID
	}
	return out
}
