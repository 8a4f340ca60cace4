package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// wrapperPackages are skipped when resolving the reported caller.
var wrapperPackages = []string{"sirupsen/logrus", "priceflow/logger."}

// callerHook reports the first frame outside the wrappers, so calls made
// through Entry.Warn and friends point at the real call site.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(6, pcs)
	if frame, ok := firstForeignFrame(runtime.CallersFrames(pcs[:n])); ok {
		entry.Caller = &frame
	}
	return nil
}

func firstForeignFrame(frames *runtime.Frames) (runtime.Frame, bool) {
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !isWrapperFrame(frame.Function) {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

func isWrapperFrame(fn string) bool {
	for _, pkg := range wrapperPackages {
		if strings.Contains(fn, pkg) {
			return true
		}
	}
	return false
}
