package domain

import "strings"

type ClientId = string

// Identity is the viewer as known to the presence collaborator.
type Identity struct {
	ClientId  ClientId `json:"clientId"`
	Username  string   `json:"username"`
	AvatarURL string   `json:"avatarUrl"`
}

// IsGuest reports whether the username carries the reserved guest prefix.
func (i Identity) IsGuest(guestPrefix string) bool {
	return i.Username == "" || strings.HasPrefix(i.Username, guestPrefix)
}
