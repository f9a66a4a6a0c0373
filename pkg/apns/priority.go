package apns

import (
	"fmt"
	"strings"

	"github.com/sideshow/apns2"
)

// Priority tells the gateway how urgently to deliver a notification.
type Priority int

const (
	// Immediate delivers right away. The gateway code is 10.
	Immediate Priority = iota
	// Delayed lets the device batch delivery to save power. The gateway code is 5.
	Delayed
)

var priorityCodes = map[Priority]int{
	Immediate: apns2.PriorityHigh,
	Delayed:   apns2.PriorityLow,
}

var priorityNames = map[Priority]string{
	Immediate: "immediate",
	Delayed:   "delayed",
}

// Code returns the value sent in the apns-priority header and whether p is
// a known priority.
func (p Priority) Code() (int, bool) {
	code, ok := priorityCodes[p]
	return code, ok
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// ParsePriority accepts a priority name ("immediate", "delayed"), its
// gateway code ("10", "5") or the apns2 aliases ("high", "low").
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate", "high", "10":
		return Immediate, nil
	case "delayed", "low", "5":
		return Delayed, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}
