// Package connectivity tracks network reachability and decides whether the
// send queue may attempt delivery.
package connectivity

import (
	"context"
	"fmt"
	"strings"
)

// State is the last observed network reachability.
type State int

const (
	NotConnected State = iota
	WiFi
	Ethernet
	Mobile
	Roaming
	Unknown
)

var stateNames = map[State]string{
	NotConnected: "not_connected",
	WiFi:         "wifi",
	Ethernet:     "ethernet",
	Mobile:       "mobile",
	Roaming:      "roaming",
	Unknown:      "unknown",
}

// String returns the snake_case name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState parses a name produced by String. Matching is case-insensitive.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return Unknown, fmt.Errorf("unknown connection state %q", name)
}

// CanSend is the single send-eligibility predicate. Roaming and Unknown are
// treated as not connected.
func CanSend(s State) bool {
	switch s {
	case WiFi, Ethernet, Mobile:
		return true
	default:
		return false
	}
}

// Oracle is consulted by the send queue before and during a drain.
type Oracle interface {
	// CanSend reports whether the last observed state permits delivery.
	CanSend() bool

	// CheckConnection re-observes the state and reports whether it changed.
	CheckConnection(ctx context.Context) bool
}
