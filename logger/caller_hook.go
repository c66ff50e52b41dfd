package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook rewrites the caller field on every entry. Because all logging
// goes through the Log/Entry wrappers, logrus's own caller report would name
// this package on every line; the hook walks up to the first frame that
// belongs to neither logrus nor the wrappers.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	// 6 skips runtime.Callers, Fire itself and the logrus hook plumbing.
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		fn := frame.Function
		if strings.Contains(fn, "sirupsen/logrus") || strings.Contains(fn, "akashwatch/logger") {
			continue
		}
		entry.Caller = &frame
		break
	}
	return nil
}
