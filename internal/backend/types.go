package backend

import "time"

// Mood is a backend mood row.
type Mood struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MoodGenre maps a mood to its genre list.
type MoodGenre struct {
	ID     int      `json:"id"`
	Mood   Mood     `json:"mood"`
	MoodID int      `json:"mood_id"`
	Genres []string `json:"genres"`
}

// ActivitySuggestion lists activities for a mood.
type ActivitySuggestion struct {
	ID         int      `json:"id"`
	MoodID     int      `json:"mood_id"`
	Suggestion []string `json:"suggestion"`
}

// RelaxationActivity lists relaxation activities for a mood.
type RelaxationActivity struct {
	ID       int      `json:"id"`
	MoodID   int      `json:"mood_id"`
	Activity []string `json:"activity"`
}

// User is a backend user account.
type User struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// CapturedImage is a stored snapshot record.
type CapturedImage struct {
	ID         int       `json:"id"`
	Image      string    `json:"image"`
	Mood       string    `json:"mood"`
	CapturedAt time.Time `json:"captured_at"`
}

// MoodCount is one row of the top-moods dashboard stat.
type MoodCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
