package push

import (
	"context"
	"fmt"
	"time"

	"github.com/pumpops/pumpops-server/cmd/models"
)

// Notification types per business event
const (
	TypeScheduleCreated = "schedule_created"
	TypeReportCreated   = "report_created"
	TypeFinancialUpdate = "financial_update"
	TypePumpStatus      = "pump_status"
)

const (
	defaultIcon  = "/icons/icon-192x192.png"
	defaultBadge = "/icons/badge-72x72.png"
)

// SendResult is what every helper hands back to the caller. Helpers never
// panic past the caller; any failure lands in Error.
type SendResult struct {
	Success    bool   `json:"success"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
	Error      string `json:"error,omitempty"`
}

// Notifier wraps the dispatch core with fixed templates per business event.
type Notifier struct {
	handler *PushHandler
}

func NewNotifier(handler *PushHandler) *Notifier {
	return &Notifier{handler: handler}
}

func (n *Notifier) send(ctx context.Context, req *models.DispatchRequest) SendResult {
	if req.Icon == "" {
		req.Icon = defaultIcon
	}
	if req.Badge == "" {
		req.Badge = defaultBadge
	}

	result, err := n.handler.dispatch(ctx, req)
	if err != nil {
		return SendResult{Success: false, Error: err.Error()}
	}
	return SendResult{
		Success:    true,
		Successful: result.Successful,
		Failed:     result.Failed,
		Total:      result.Total,
	}
}

// ScheduleCreated notifies the assigned operator about a new job booking.
func (n *Notifier) ScheduleCreated(ctx context.Context, operatorID uint, site string, start time.Time) SendResult {
	return n.send(ctx, &models.DispatchRequest{
		Title:  "New job scheduled",
		Body:   fmt.Sprintf("Pump job at %s on %s", site, start.Format("Mon Jan 2, 15:04")),
		URL:    "/schedules",
		Type:   TypeScheduleCreated,
		UserID: &operatorID,
	})
}

// ReportCreated notifies dispatchers that a job report came in.
func (n *Notifier) ReportCreated(ctx context.Context, dispatcherIDs []uint, site string) SendResult {
	return n.send(ctx, &models.DispatchRequest{
		Title:     "Job report submitted",
		Body:      fmt.Sprintf("A new report for %s is ready for review", site),
		URL:       "/reports",
		Type:      TypeReportCreated,
		UserGroup: dispatcherIDs,
	})
}

// FinancialUpdate broadcasts an expense or invoice change to everyone.
func (n *Notifier) FinancialUpdate(ctx context.Context, summary string) SendResult {
	return n.send(ctx, &models.DispatchRequest{
		Title: "Financial update",
		Body:  summary,
		URL:   "/finance",
		Type:  TypeFinancialUpdate,
	})
}

// PumpStatusChanged notifies dispatchers that a pump moved between
// available, on_job and maintenance.
func (n *Notifier) PumpStatusChanged(ctx context.Context, dispatcherIDs []uint, pumpName, status string) SendResult {
	return n.send(ctx, &models.DispatchRequest{
		Title:     "Pump status changed",
		Body:      fmt.Sprintf("%s is now %s", pumpName, status),
		URL:       "/pumps",
		Type:      TypePumpStatus,
		UserGroup: dispatcherIDs,
	})
}
