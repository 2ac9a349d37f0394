package executor

import (
	"context"
	"fmt"

	"github.com/dhenken/alertflow/internal/intent"
)

// Router maps effective modes to executors. DUAL dispatches to live
// first and then mirrors to paper; the two results are independent and a
// live failure does not suppress the paper mirror.
type Router struct {
	paper      Executor
	live       Executor
	historical Executor
}

func NewRouter(paper, live, historical Executor) *Router {
	return &Router{paper: paper, live: live, historical: historical}
}

func (r *Router) Dispatch(ctx context.Context, ti *intent.TradeIntent, effective intent.Mode) []intent.ExecutionResult {
	switch effective {
	case intent.Paper:
		return []intent.ExecutionResult{r.paper.Execute(ctx, ti)}
	case intent.Historical:
		return []intent.ExecutionResult{r.historical.Execute(ctx, ti)}
	case intent.Live:
		if r.live == nil {
			return []intent.ExecutionResult{noExecutor(ti, effective)}
		}
		return []intent.ExecutionResult{r.live.Execute(ctx, ti)}
	case intent.Dual:
		if r.live == nil {
			return []intent.ExecutionResult{noExecutor(ti, effective), r.paper.Execute(ctx, ti)}
		}
		return []intent.ExecutionResult{r.live.Execute(ctx, ti), r.paper.Execute(ctx, ti)}
	default:
		return []intent.ExecutionResult{{
			IntentID: ti.ID,
			Status:   intent.Failed,
			Executor: "router",
			Reason:   fmt.Sprintf("no executor for mode %s", effective),
		}}
	}
}

func noExecutor(ti *intent.TradeIntent, mode intent.Mode) intent.ExecutionResult {
	return intent.ExecutionResult{
		IntentID: ti.ID,
		Status:   intent.Failed,
		Executor: "router",
		Reason:   fmt.Sprintf("mode %s requires a configured live broker", mode),
	}
}
