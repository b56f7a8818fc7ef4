// Package trustgate embeds the governance core in Go agent frameworks.
// It wraps tool functions, evaluates each proposed action against the
// active constraint set and the entity's trust standing, and enforces
// decisions (allow, limit, deny, escalate) at boundaries agents cannot
// bypass. Every evaluation lands in the local evidence chain.
//
// Usage:
//
//	tg, err := trustgate.New(trustgate.WithDataDir("/var/lib/trustgate"))
//	wrapped := tg.Wrap(myTool, trustgate.WrapWithEntity("agent-7"))
//	out, err := wrapped(ctx, trustgate.Action{
//	    Name:    "payment.send",
//	    Context: map[string]any{"amount": 120.0},
//	})
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/ppiankov/trustgate/sdk/go/trustgate.
package trustgate
