// Package notify delivers enforcement notifications the monitor records
// when it stops a VPS for budget overage (spec.md §4.4 "record
// notification event"). Delivery is via Google Cloud Tasks for durable,
// at-least-once HTTP dispatch to an external notification endpoint, with
// an in-memory fallback for local development and test.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
)

// EnforcementNotification is the payload delivered when the monitor
// stops one or more VPSes for a user over budget.
type EnforcementNotification struct {
	UserID           string    `json:"user_id"`
	VpsID            string    `json:"vps_id"`
	Resource         string    `json:"resource"` // bandwidth, cpu, memory
	Aggregate        int64     `json:"aggregate"`
	Cap              int64     `json:"cap"`
	OverageCostCents int64     `json:"overage_cost_cents"`
	BudgetCents      int64     `json:"budget_cents"`
	Timestamp        time.Time `json:"timestamp"`
}

// Dispatcher delivers enforcement notifications.
type Dispatcher interface {
	NotifyEnforcement(ctx context.Context, n EnforcementNotification) error
	Close() error
}

// CloudTasksDispatcher enqueues one HTTP task per notification.
type CloudTasksDispatcher struct {
	client    *cloudtasks.Client
	queuePath string
	targetURL string
	fallback  *InMemoryDispatcher
}

// NewCloudTasksDispatcher dials Cloud Tasks. targetURL is the endpoint
// the enqueued HTTP task posts to (an external collaborator per spec.md
// §1 "explicitly out of scope").
func NewCloudTasksDispatcher(projectID, locationID, queueID, targetURL string) (*CloudTasksDispatcher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: cloudtasks.NewClient: %w", err)
	}

	queuePath := fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID)

	return &CloudTasksDispatcher{
		client:    client,
		queuePath: queuePath,
		targetURL: targetURL,
		fallback:  NewInMemoryDispatcher(),
	}, nil
}

func (d *CloudTasksDispatcher) NotifyEnforcement(ctx context.Context, n EnforcementNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	req := &taskspb.CreateTaskRequest{
		Parent: d.queuePath,
		Task: &taskspb.Task{
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        d.targetURL,
					Headers:    map[string]string{"Content-Type": "application/json"},
					Body:       payload,
				},
			},
		},
	}

	if _, err := d.client.CreateTask(ctx, req); err != nil {
		slog.Warn("notify: cloud tasks enqueue failed, falling back to in-memory", "error", err)
		return d.fallback.NotifyEnforcement(ctx, n)
	}
	return nil
}

func (d *CloudTasksDispatcher) Close() error {
	return d.client.Close()
}

// InMemoryDispatcher logs notifications and is the dispatcher used when
// Cloud Tasks is disabled, or as a last-resort fallback.
type InMemoryDispatcher struct{}

func NewInMemoryDispatcher() *InMemoryDispatcher { return &InMemoryDispatcher{} }

func (d *InMemoryDispatcher) NotifyEnforcement(_ context.Context, n EnforcementNotification) error {
	slog.Info("notify: enforcement recorded",
		"user_id", n.UserID, "vps_id", n.VpsID, "resource", n.Resource,
		"aggregate", n.Aggregate, "cap", n.Cap,
		"overage_cost_cents", n.OverageCostCents, "budget_cents", n.BudgetCents)
	return nil
}

func (d *InMemoryDispatcher) Close() error { return nil }
