//go:build !debug

package sm

import (
	"fmt"

	"github.com/vibeus/cros-session-deriver/internal/model"
)

func illegalTransition(state model.LastState, ev EventKind) (Result, error) {
	return Result{}, New(KindUnreachableTransition,
		fmt.Sprintf("unreachable transition: state=%s event=%s", state, ev), nil)
}
