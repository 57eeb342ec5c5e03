package domain

import "time"

// Participant identifies who is taking a quiz.
type Participant struct {
	ID       string   `json:"participantId"`
	TeamName string   `json:"teamName"`
	Grade    string   `json:"grade"`
	Language Language `json:"language"`
}

// Answer is one recorded response within a session. Value is nil when the
// question was skipped by a per-question timeout.
type Answer struct {
	QuestionID     string  `json:"questionId"`
	Value          *string `json:"answer"`
	ElapsedSeconds int     `json:"time"`
}

// Result is the persisted final score of a participant, keyed by ParticipantID.
type Result struct {
	ParticipantID string    `json:"participantId"`
	TeamName      string    `json:"teamName"`
	Grade         string    `json:"grade"`
	Score         int       `json:"score"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// LeaderboardEntry is a ranked view of a Result.
type LeaderboardEntry struct {
	Rank          int       `json:"rank"`
	ParticipantID string    `json:"participantId"`
	TeamName      string    `json:"teamName"`
	Grade         string    `json:"grade"`
	Score         int       `json:"score"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Leaderboard captures the ordered scoreboard, optionally for one grade.
type Leaderboard struct {
	Grade     string             `json:"grade,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Stats is the admin analytics summary.
type Stats struct {
	Participants        int              `json:"numParticipants"`
	Submissions         int              `json:"numSubmissions"`
	AverageScore        float64          `json:"averageScore"`
	QuestionsByCategory map[Category]int `json:"questionsByCategory"`
}

// User is a participant or admin account. PasswordHash never leaves the server.
type User struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Grade         string `json:"grade"`
	Email         string `json:"email"`
	PasswordHash  string `json:"-"`
	ParticipantID string `json:"participantId"`
	IsAdmin       bool   `json:"isAdmin"`
}

// Role returns the auth role for u.
func (u User) Role() string {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleParticipant
}

const (
	RoleAdmin       = "admin"
	RoleParticipant = "participant"
)
