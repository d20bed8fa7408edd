package service

import (
	"context"
	"errors"

	"github.com/campusflow/campus-queue/internal/config"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
)

// activeServers is the number of staff assumed to serve a department at once.
const activeServers = 1

// CrowdLevel is a coarse occupancy signal.
type CrowdLevel string

const (
	CrowdGreen  CrowdLevel = "GREEN"
	CrowdYellow CrowdLevel = "YELLOW"
	CrowdRed    CrowdLevel = "RED"
)

// CrowdEstimate is the result of CrowdEstimator.Estimate.
type CrowdEstimate struct {
	DepartmentID         string     `json:"department_id"`
	QueueLength          int        `json:"queue_length"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	Level                CrowdLevel `json:"level"`
}

// CrowdEstimator derives wait signals from committed queue state. It never
// writes.
type CrowdEstimator struct {
	store store.Reader
	cfg   config.CrowdConfig
}

// NewCrowdEstimator builds an estimator reading from r.
func NewCrowdEstimator(r store.Reader, cfg config.CrowdConfig) *CrowdEstimator {
	return &CrowdEstimator{store: r, cfg: cfg}
}

// Estimate returns the crowd signal for a department. A missing queue yields
// the zero/GREEN baseline.
func (c *CrowdEstimator) Estimate(ctx context.Context, departmentID string) (CrowdEstimate, error) {
	result := CrowdEstimate{DepartmentID: departmentID, Level: CrowdGreen}

	queue, err := c.store.GetQueue(ctx, departmentID)
	if errors.Is(err, domain.ErrQueueNotFound) {
		return result, nil
	}
	if err != nil {
		return result, err
	}

	length, err := c.store.CountTickets(ctx, queue.ID, domain.ActiveTicketStates...)
	if err != nil {
		return result, err
	}

	result.QueueLength = length
	result.EstimatedWaitMinutes = ceilDiv(length*c.averageServiceMinutes(queue), activeServers)
	result.Level = c.level(result.EstimatedWaitMinutes)
	return result, nil
}

// averageServiceMinutes is the per-ticket service time every wait estimate
// uses: the queue's own figure, else the configured crowd default.
func (c *CrowdEstimator) averageServiceMinutes(queue *domain.Queue) int {
	if queue != nil && queue.AverageServiceMinutes > 0 {
		return queue.AverageServiceMinutes
	}
	if c.cfg.AverageServiceMinutes > 0 {
		return c.cfg.AverageServiceMinutes
	}
	return domain.DefaultAverageServiceMinutes
}

func (c *CrowdEstimator) level(waitMinutes int) CrowdLevel {
	switch {
	case waitMinutes > c.cfg.RedAboveMinutes:
		return CrowdRed
	case waitMinutes > c.cfg.YellowAboveMinutes:
		return CrowdYellow
	default:
		return CrowdGreen
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
