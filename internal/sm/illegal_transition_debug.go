//go:build debug

package sm

import (
	"fmt"

	"github.com/vibeus/cros-session-deriver/internal/model"
)

func illegalTransition(state model.LastState, ev EventKind) (Result, error) {
	panic(fmt.Sprintf("unreachable transition: state=%s event=%s", state, ev))
}
