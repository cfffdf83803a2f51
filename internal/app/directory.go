package app

import (
	"context"

	"github.com/dkeye/SFU/internal/domain"
)

// Directory mirrors the set of participants with a live producer to an
// external store so other processes can observe it.
type Directory interface {
	Reset(ctx context.Context) error
	Add(ctx context.Context, id domain.ParticipantID) error
	Remove(ctx context.Context, id domain.ParticipantID) error
	List(ctx context.Context) ([]domain.ParticipantID, error)
}
