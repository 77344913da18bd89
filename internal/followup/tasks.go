package followup

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TaskFollowup = "relay.followup"

func NewFollowupTask(job Job) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowup, data), nil
}

func ParseFollowupPayload(task *asynq.Task) (Job, error) {
	var job Job
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return Job{}, err
	}
	if job.OrderID == "" || job.Phone == "" {
		return Job{}, fmt.Errorf("followup payload missing order or phone")
	}
	switch job.Kind {
	case KindResolutionAlert, KindReviewRequest:
		return job, nil
	}
	return Job{}, fmt.Errorf("unknown followup kind %q", job.Kind)
}
