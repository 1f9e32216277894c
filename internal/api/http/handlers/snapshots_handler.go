package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issuelog/internal/api/dto"
	"github.com/spec-kit/issuelog/internal/domain"
	apperrors "github.com/spec-kit/issuelog/pkg/util/errorutil"
)

// SnapshotReader reads stored issue histories.
type SnapshotReader interface {
	Snapshots(ctx context.Context, kind string, issueID int64) ([]domain.Snapshot, error)
}

// SnapshotsHandler exposes stored snapshot histories.
type SnapshotsHandler struct {
	reader SnapshotReader
}

// NewSnapshotsHandler constructs handler.
func NewSnapshotsHandler(reader SnapshotReader) *SnapshotsHandler {
	return &SnapshotsHandler{reader: reader}
}

// ListSnapshots GET /issues/:id/snapshots?kind=.
func (h *SnapshotsHandler) ListSnapshots(c *fiber.Ctx) error {
	issueID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || issueID <= 0 {
		return apperrors.NewValidationError("invalid issue id", map[string]any{"id": c.Params("id")})
	}

	snapshots, err := h.reader.Snapshots(c.UserContext(), c.Query("kind"), issueID)
	if err != nil {
		return err
	}

	items := make([]dto.SnapshotResponse, 0, len(snapshots))
	for _, s := range snapshots {
		items = append(items, dto.NewSnapshotResponse(s))
	}
	return c.JSON(fiber.Map{"data": items})
}
