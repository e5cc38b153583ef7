package domain

import "context"

// Dispatcher forwards a clean query to the answer service. It never returns
// an error: failures are folded into BackendAnswer.
type Dispatcher interface {
	Dispatch(ctx context.Context, q BackendQuery) BackendAnswer
}
