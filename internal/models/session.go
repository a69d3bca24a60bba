package models

import "time"

// Session is the server-held proof of an authenticated user.
type Session struct {
	Token   string
	UserID  string
	Expires time.Time
}

func (s Session) Active(now time.Time) bool {
	return now.Before(s.Expires)
}
