package store

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Role is the closed set of account roles. Values are parsed once with ParseRole.
type Role string

const (
	RoleCitizen    Role = "citizen"
	RolePolice     Role = "police"
	RoleUniversity Role = "university"
)

// ParseRole converts a raw role tag. An empty tag defaults to citizen.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case "":
		return RoleCitizen, nil
	case RoleCitizen, RolePolice, RoleUniversity:
		return Role(raw), nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Privileged reports whether the role may read and modify any account.
func (r Role) Privileged() bool {
	return r == RolePolice
}

type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Role           Role       `json:"role"`
	IsActive       bool       `json:"is_active"`
	IsVerified     bool       `json:"is_verified"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login"`
	ProfilePicture *string    `json:"profile_picture"`
}

// PublicUser is the account shape shown to other users: no email, no credential.
type PublicUser struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Role           Role    `json:"role"`
	ProfilePicture *string `json:"profile_picture"`
}

func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:             u.ID,
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Role:           u.Role,
		ProfilePicture: u.ProfilePicture,
	}
}

// Message senders.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	MetaInfo       *string   `json:"meta_info"`
}

// Alert statuses.
const (
	AlertStatusNew        = "new"
	AlertStatusInProgress = "in_progress"
	AlertStatusResolved   = "resolved"
)

const (
	MinRiskLevel = 1
	MaxRiskLevel = 10
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type SuspectAlert struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Description    string         `json:"description"`
	Location       GeoPoint       `json:"location"`
	RiskLevel      int            `json:"risk_level"`
	Status         string         `json:"status"`
	ReportedAt     time.Time      `json:"reported_at"`
	ResolvedAt     *time.Time     `json:"resolved_at"`
	OwnerID        *string        `json:"-"`
	Reporter       *PublicUser    `json:"reporter"`
	AdditionalData map[string]any `json:"additional_data"`
}

// ClampRisk bounds a risk score to [MinRiskLevel, MaxRiskLevel].
func ClampRisk(level int) int {
	return min(max(level, MinRiskLevel), MaxRiskLevel)
}

// Research project statuses.
const (
	ResearchStatusDraft      = "draft"
	ResearchStatusInProgress = "in_progress"
	ResearchStatusCompleted  = "completed"
)

type ResearchProject struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	OwnerID     *string        `json:"-"`
	Researcher  *PublicUser    `json:"researcher"`
	Tags        []string       `json:"tags"`
	Results     map[string]any `json:"-"`
}

func (p ResearchProject) MarshalJSON() ([]byte, error) {
	type alias ResearchProject
	return json.Marshal(struct {
		alias
		HasResults bool `json:"has_results"`
	}{alias: alias(p), HasResults: len(p.Results) > 0})
}

// Urbanism project statuses. Synced city events are open opportunities.
const (
	UrbanismStatusOpen     = "open"
	UrbanismStatusAnalyzed = "analyzed"
)

type UrbanismProject struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Content     string    `json:"-"`
	Analysis    string    `json:"analysis,omitempty"`
	OwnerID     *string   `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DataChunk struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}
