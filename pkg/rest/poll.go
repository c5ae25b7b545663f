package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/netops-tools/sastre/pkg/metrics"
	"github.com/netops-tools/sastre/pkg/types"
)

const (
	actionStatusPath = "device/action/status"

	// DefaultPollInterval is the wait between action status polls.
	DefaultPollInterval = 10 * time.Second
	// DefaultActionTimeout bounds the overall wait for one action.
	DefaultActionTimeout = 20 * time.Minute
)

// ActionRecord is the status of one sub-task (usually one device) of a
// long-running controller action.
type ActionRecord struct {
	Status   string
	Activity string
	DeviceIP string
	HostName string
}

// ActionResult aggregates the terminal state of one controller action.
type ActionResult struct {
	ActionID string
	Status   string
	Success  bool
	Records  []ActionRecord
}

// terminalStatuses as reported per sub-task by the controller.
var terminalStatuses = map[string]bool{
	"Success": true,
	"Failure": true,
	"Done":    true,
}

// PollAction polls the action status endpoint every interval until the
// action reaches a terminal status or timeout expires. The controller keeps
// running the action after a timeout; ErrActionTimeout only means the wait
// gave up.
func (c *Client) PollAction(ctx context.Context, actionID string, timeout, interval time.Duration) (ActionResult, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	deadline := time.Now().Add(timeout)
	result := ActionResult{ActionID: actionID}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		metrics.ActionPollsTotal.Inc()

		reply, err := c.GetJSON(ctx, actionStatusPath+"/"+actionID)
		if err != nil {
			return result, fmt.Errorf("polling action %s: %w", actionID, err)
		}

		result.Status, result.Records = parseActionStatus(reply)
		if result.Status == "done" {
			result.Success = true
			for _, rec := range result.Records {
				if rec.Status != "Success" && rec.Status != "Done" {
					result.Success = false
					break
				}
			}
			return result, nil
		}

		if time.Now().After(deadline) {
			return result, fmt.Errorf("%w: action %s still %q after %s",
				types.ErrActionTimeout, actionID, result.Status, timeout)
		}
		if err := sleepCtx(ctx, interval); err != nil {
			return result, err
		}
	}
}

func parseActionStatus(reply map[string]any) (string, []ActionRecord) {
	status := ""
	if summary, ok := reply["summary"].(map[string]any); ok {
		status, _ = summary["status"].(string)
	}

	var records []ActionRecord
	for _, entry := range dataList(reply) {
		rec := ActionRecord{}
		rec.Status, _ = entry["status"].(string)
		rec.Activity = lastActivity(entry)
		rec.DeviceIP, _ = entry["deviceID"].(string)
		rec.HostName, _ = entry["host-name"].(string)
		records = append(records, rec)
	}
	return status, records
}

func lastActivity(entry map[string]any) string {
	list, _ := entry["activity"].([]any)
	if len(list) == 0 {
		return ""
	}
	s, _ := list[len(list)-1].(string)
	return s
}
