package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issuelog/internal/api/dto"
	"github.com/spec-kit/issuelog/internal/auth"
	"github.com/spec-kit/issuelog/internal/service"
	apperrors "github.com/spec-kit/issuelog/pkg/util/errorutil"
)

// RunController is the part of the replay service the run endpoints use.
type RunController interface {
	Start(ctx context.Context, opts service.RunOptions) (string, error)
	Latest(ctx context.Context) (*service.RunReport, error)
}

// RunsHandler starts replay runs and reports on them.
type RunsHandler struct {
	runs RunController
	// runs outlive the request that started them
	baseCtx context.Context
}

// NewRunsHandler constructs handler. baseCtx bounds background runs.
func NewRunsHandler(runs RunController, baseCtx context.Context) *RunsHandler {
	return &RunsHandler{runs: runs, baseCtx: baseCtx}
}

// StartRun POST /runs.
func (h *RunsHandler) StartRun(c *fiber.Ctx) error {
	var req dto.StartRunRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if req.Workers < 0 || req.TrackerID < 0 {
		return apperrors.NewValidationError("workers and tracker_id must not be negative", nil)
	}

	opts := service.RunOptions{
		Kind:      req.Kind,
		TrackerID: req.TrackerID,
		IssueIDs:  req.IssueIDs,
		Workers:   req.Workers,
	}
	id, err := h.runs.Start(h.baseCtx, opts)
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			return apperrors.NewConflict(err.Error(), nil)
		}
		return err
	}

	startedBy := ""
	if principal, ok := auth.PrincipalFromContext(c); ok {
		startedBy = principal.Subject
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.StartRunResponse{
		RunID:     id,
		StartedBy: startedBy,
	}})
}

// LatestRun GET /runs/latest.
func (h *RunsHandler) LatestRun(c *fiber.Ctx) error {
	report, err := h.runs.Latest(c.UserContext())
	if err != nil {
		if errors.Is(err, service.ErrReportNotFound) {
			return apperrors.NewNotFound("run report", nil)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
