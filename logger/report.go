package logger

import (
	"sync"
	"sync/atomic"
)

type componentStat struct {
	warns  int64
	errors int64
}

var components sync.Map // map[string]*componentStat

func statFor(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&statFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&statFor(component).errors, 1)
}

// Counts returns warnings and errors logged so far for a component.
func Counts(component string) (warns, errors int64) {
	v, ok := components.Load(component)
	if !ok {
		return 0, 0
	}
	cs := v.(*componentStat)
	return atomic.LoadInt64(&cs.warns), atomic.LoadInt64(&cs.errors)
}

// LogReport writes one line with the warn/error totals of every component
// that logged at least one of them.
func LogReport(log *Log) {
	totals := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		totals[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&cs.warns),
			"errors": atomic.LoadInt64(&cs.errors),
		}
		return true
	})
	log.WithComponent("report").WithFields(Fields{"components": totals}).Info("run report")
}

func resetCounts() {
	components.Range(func(k, _ any) bool {
		components.Delete(k)
		return true
	})
}
