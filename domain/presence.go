package domain

import (
	"fmt"
	"skill-chat/errors"
)

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusAway    PresenceStatus = "away"
)

func ParsePresenceStatus(s string) (PresenceStatus, error) {
	switch p := PresenceStatus(s); p {
	case StatusOnline, StatusOffline, StatusAway:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", errors.ErrInvalidStatus, s)
}
