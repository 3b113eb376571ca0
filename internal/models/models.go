package models

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleDefault Role = "default"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// IsStaff reports whether the role may manage rewards and uploaders.
func (r Role) IsStaff() bool { return r == RoleAdmin || r == RoleManager }

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBanned    Status = "banned"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusBanned:
		return true
	}
	return false
}

// DiscordProfile is the subset of GET /users/@me the hub keeps.
type DiscordProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"global_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	// Image is the resolved CDN avatar URL.
	Image string `json:"image,omitempty"`
}

// Name is what the dashboard shows: the global display name when set.
func (p DiscordProfile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// Uploader is owned by the backend; it is keyed by DiscordUID.
type Uploader struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DiscordUID string `json:"discord_uid"`
	Type       Role   `json:"type,omitempty"`
	Status     Status `json:"status"`
	CreatedAt  string `json:"created_at,omitempty"`
}

type CodeReward struct {
	RewardID string `json:"reward_id"`
	Name     string `json:"name,omitempty"`
	Icon     string `json:"icon,omitempty"`
	Amount   int    `json:"amount"`
}

// RedeemCode keeps every backend field in Extra so the listing join never drops data.
type RedeemCode struct {
	ID                 string       `json:"id"`
	UploaderID         string       `json:"uploader_id"`
	UploaderName       string       `json:"uploader_name,omitempty"`
	UploaderDiscordUID string       `json:"uploader_discord_uid,omitempty"`
	Code               string       `json:"code"`
	Version            string       `json:"version,omitempty"`
	ExpiredAt          *string      `json:"expired_at"`
	CreatedAt          string       `json:"created_at"`
	Rewards            []CodeReward `json:"rewards"`

	Extra map[string]json.RawMessage `json:"-"`
}

var codeFields = []string{"id", "uploader_id", "uploader_name", "uploader_discord_uid", "code", "version", "expired_at", "created_at", "rewards"}

func (c *RedeemCode) UnmarshalJSON(b []byte) error {
	type plain RedeemCode
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	extra, err := SplitExtra(b, codeFields...)
	if err != nil {
		return err
	}
	p.Extra = extra
	*c = RedeemCode(p)
	return nil
}

func (c RedeemCode) MarshalJSON() ([]byte, error) {
	type plain RedeemCode
	b, err := json.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	return MergeExtra(b, c.Extra)
}

// SplitExtra returns the members of the JSON object b that are not named in known, or nil.
func SplitExtra(b []byte, known ...string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// MergeExtra adds extra to the JSON object b. Members already present in b win.
func MergeExtra(b []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return b, nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

type Reward struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type APIKey struct {
	Key         string `json:"key"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	DiscordUID  string `json:"discord_uid,omitempty"`
}

// Envelope is the backend's response wrapper.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Session is the local revocation record of an issued dashboard session.
type Session struct {
	ID            uint   `gorm:"primaryKey"            json:"id"`
	JTI           string `gorm:"uniqueIndex;not null"  json:"jti"`
	DiscordUID    string `gorm:"index;not null"        json:"discord_uid"`
	ExpiresAt     int64  `gorm:"not null"              json:"expires_at"`
	Revoked       bool   `gorm:"default:false"         json:"revoked"`
	RevokedReason string `json:"revoked_reason,omitempty"`
	CreatedAt     time.Time
}
