package ewf

import (
	"runtime"
	"time"
)

// systemClock is the default header.Clock collaborator.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// runtimeSystemInfo is the default header.SystemInfo collaborator.
type runtimeSystemInfo struct{}

func (runtimeSystemInfo) OS() string { return runtime.GOOS }
