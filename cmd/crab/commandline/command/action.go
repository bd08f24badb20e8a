package command

import (
	"fmt"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/rest"
)

type ActionStatus string

const (
	ActionSuccess ActionStatus = "SUCCESS"
	ActionFailed  ActionStatus = "FAILED"
)

// ActionResult is how the server took an action on a task.
type ActionResult struct {
	Status ActionStatus `json:"status"`

	// category of the failure. Empty on success.
	Kind craberr.Kind `json:"kind,omitempty"`

	// why the server refused.
	Reason string `json:"reason,omitempty"`
}

func (a ActionResult) ExitCode() int {
	if a.Status == ActionSuccess {
		return craberr.ExitOK
	}
	return craberr.ExitCodeOf(a.Kind)
}

func (a ActionResult) String() string {
	if a.Reason == "" {
		return string(a.Status)
	}
	return fmt.Sprintf("%s: %s", a.Status, a.Reason)
}

// ActionOf reads a response to an action.
//
// A response with result "ok" is a success. Others are failures: a 2xx
// response is a server failure, and others are communication failures.
func ActionOf(resp *rest.Response) ActionResult {
	if resp.OK() {
		return ActionResult{Status: ActionSuccess}
	}

	reason := resp.Message()
	if !resp.Is2xx() {
		status := fmt.Sprintf("%d %s", resp.Status, resp.Reason)
		if reason == "" {
			reason = status
		} else {
			reason = status + ": " + reason
		}
		return ActionResult{Status: ActionFailed, Kind: craberr.KindCommunication, Reason: reason}
	}

	if reason == "" {
		reason = fmt.Sprintf("server answered %q", resp.Result().Get("result").String())
	}
	return ActionResult{Status: ActionFailed, Kind: craberr.KindServer, Reason: reason}
}
