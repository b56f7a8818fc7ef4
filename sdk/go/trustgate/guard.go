package trustgate

import (
	"context"

	"github.com/ppiankov/trustgate/internal/model"
)

// ToolFunc is the function signature that Wrap guards. The caller
// provides an Action describing the intended operation.
type ToolFunc func(ctx context.Context, action Action) (any, error)

// Wrap returns a ToolFunc that evaluates the action before calling fn.
// Denied and escalated actions return a *BlockedError without calling
// fn; escalations carry the escalation ID for out-of-band approval.
// Limit permits the call; the recorded decision marks it monitored.
func (c *Client) Wrap(fn ToolFunc, opts ...WrapOption) ToolFunc {
	wcfg := wrapConfig{entity: c.cfg.entity}
	for _, o := range opts {
		o(&wcfg)
	}

	return func(ctx context.Context, action Action) (any, error) {
		dec, err := c.core.EvaluateAction(&model.ActionRequest{
			EntityID: c.entityFor(action, wcfg.entity),
			Action:   action.Name,
			Context:  action.Context,
		})
		if err != nil {
			return nil, err
		}

		result := toResult(dec)
		if !result.Allowed() {
			return nil, &BlockedError{Action: action, Result: result}
		}
		return fn(ctx, action)
	}
}
