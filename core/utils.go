package core

import (
	"reflect"

	"github.com/encodeous/dvr/state"
)

// AddMetric adds two costs, saturating at INF
func AddMetric(a, b state.Cost) state.Cost {
	if a == state.INF || b == state.INF {
		return state.INF
	} else {
		return state.Cost(min(uint32(state.INF), uint32(a)+uint32(b)))
	}
}

func Get[T state.Module](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}
