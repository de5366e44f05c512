package app

import (
	"context"
	"fmt"
	"time"

	"github.com/example/patchbot/internal/ports/primary"
	"github.com/example/patchbot/internal/ports/secondary"
)

// HistoryServiceImpl exposes the persisted job audit trail.
type HistoryServiceImpl struct {
	repo secondary.JobHistoryRepository
}

// NewHistoryService creates a history service over the given repository.
func NewHistoryService(repo secondary.JobHistoryRepository) *HistoryServiceImpl {
	return &HistoryServiceImpl{repo: repo}
}

// Recent returns the most recent terminal outcomes, newest first.
func (s *HistoryServiceImpl) Recent(ctx context.Context, limit int) ([]primary.HistoryEntry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("job history is not configured (set history_db_path)")
	}

	records, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]primary.HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, primary.HistoryEntry{
			ID:           rec.ID,
			ThreadKey:    rec.ThreadKey,
			Description:  rec.Description,
			Status:       rec.Status,
			BranchName:   rec.BranchName,
			PRURL:        rec.PRURL,
			PreviewURL:   rec.PreviewURL,
			ErrorMessage: rec.ErrorMessage,
			FilesChanged: rec.FilesChanged,
			Retries:      rec.Retries,
			CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
		})
	}
	return entries, nil
}

var _ primary.HistoryService = (*HistoryServiceImpl)(nil)
