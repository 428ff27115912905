package domain

import "time"

// Principal is an identity known to the repository
type Principal struct {
	Provider   string    `json:"provider"`
	Identifier string    `json:"identifier"`
	Subject    string    `json:"subject"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Session is the caller on whose behalf an operation runs
type Session struct {
	Subject         string   `json:"subject"`
	DefaultAuthKeys []string `json:"defaultAuthKeys,omitempty"`
}

// AuthKeyNone is the auth key granting access to everyone
const AuthKeyNone = "none"

// AuthKeySubject is the auth key resolving to the session subject
const AuthKeySubject = "subject"

// ResolvedAuthKey pairs an auth key with its session specific resolution
type ResolvedAuthKey struct {
	AuthKey         string `json:"authKey"`
	ResolvedAuthKey string `json:"resolvedAuthKey"`
}
