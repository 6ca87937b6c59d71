// Package scheduler provides the asynq-backed task queue used to replay
// distribution write-backs that failed after the remote allocation committed.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskDistributionReconcile = "distribution.reconcile"

// DistributionReconcilePayload names a telecaller and the lead rows whose
// local assignment still needs to converge to the remote allocation.
type DistributionReconcilePayload struct {
	TelecallerID string   `json:"telecallerId"`
	LeadIDs      []string `json:"leadIds"`
}

func NewDistributionReconcileTask(payload DistributionReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDistributionReconcile, data), nil
}

func ParseDistributionReconcilePayload(task *asynq.Task) (DistributionReconcilePayload, error) {
	var payload DistributionReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DistributionReconcilePayload{}, err
	}
	return payload, nil
}
