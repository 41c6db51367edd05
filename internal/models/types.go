package models

import (
	"encoding/json"
	"time"
)

// Session status values. A session starts in progress and moves to exactly
// one terminal state.
const (
	SessionInProgress = 0
	SessionCompleted  = 1
	SessionAbandoned  = 2
)

// Payment order states. Paid/failed are only ever set from a confirmed
// gateway outcome, never inferred locally.
const (
	OrderPending  = "pending"
	OrderPaid     = "paid"
	OrderRefunded = "refunded"
	OrderFailed   = "failed"
)

// Respondent is the person taking the assessment. Soft-deleted via Status
// only; this layer never removes the record.
type Respondent struct {
	ID                 string    `json:"id"`
	Nickname           string    `json:"nickname,omitempty"`
	Contact            string    `json:"contact,omitempty"`
	AgeRange           string    `json:"age_range,omitempty"`
	Gender             string    `json:"gender,omitempty"`
	RegistrationSource string    `json:"registration_source,omitempty"`
	DeviceFingerprint  string    `json:"device_fingerprint,omitempty"`
	UserAgent          string    `json:"user_agent,omitempty"`
	Status             int       `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TestSession is one run through the questionnaire.
type TestSession struct {
	ID             string             `json:"id"`
	RespondentID   string             `json:"respondent_id"`
	TestType       string             `json:"test_type,omitempty"`
	TestVersion    string             `json:"test_version,omitempty"`
	Status         int                `json:"status"`
	TotalQuestions int                `json:"total_questions"`
	AnsweredCount  int                `json:"answered_count"`
	CurrentIndex   int                `json:"current_index"`
	TimeSpentSec   int                `json:"time_spent_sec,omitempty"`
	AvgTimePerQ    float64            `json:"avg_time_per_q,omitempty"`
	DeviceType     string             `json:"device_type,omitempty"`
	BrowserInfo    string             `json:"browser_info,omitempty"`
	SourcePage     string             `json:"source_page,omitempty"`
	UTMSource      string             `json:"utm_source,omitempty"`
	UTMMedium      string             `json:"utm_medium,omitempty"`
	UTMCampaign    string             `json:"utm_campaign,omitempty"`
	ResultType     string             `json:"result_type,omitempty"`
	ShadowType     string             `json:"shadow_type,omitempty"`
	AxisScores     map[string]float64 `json:"axis_scores,omitempty"`
	AxisPercent    map[string]int     `json:"axis_percent,omitempty"`
	Confidence     float64            `json:"confidence,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// AnswerRecord is one answered question slot. Identity is
// (SessionID, QuestionIndex): a resubmission updates in place.
type AnswerRecord struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	RespondentID  string    `json:"respondent_id"`
	QuestionIndex int       `json:"question_index"`
	QuestionText  string    `json:"question_text,omitempty"`
	Axis          string    `json:"axis"`
	Direction     int       `json:"direction"`
	OptionIndex   int       `json:"option_index"`
	OptionText    string    `json:"option_text,omitempty"`
	Score         float64   `json:"score"`
	TimeSpentSec  int       `json:"time_spent_sec,omitempty"`
	Changed       bool      `json:"changed,omitempty"`
	ChangeCount   int       `json:"change_count,omitempty"`
	PreviousIndex *int      `json:"previous_index,omitempty"`
	AnsweredAt    time.Time `json:"answered_at"`
}

// PaymentOrder tracks a purchase of the full report. FinalAmount never
// exceeds OriginalAmount.
type PaymentOrder struct {
	ID             string    `json:"id"`
	RespondentID   string    `json:"respondent_id"`
	SessionID      string    `json:"session_id"`
	Product        string    `json:"product"`
	OriginalAmount int64     `json:"original_amount"`
	DiscountAmount int64     `json:"discount_amount,omitempty"`
	FinalAmount    int64     `json:"final_amount"`
	Status         string    `json:"status"`
	GatewayOrderID string    `json:"gateway_order_id,omitempty"`
	GatewayTradeNo string    `json:"gateway_trade_no,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BehaviorLog is an append-only telemetry event. Never updated, only
// created; old entries are eviction candidates.
type BehaviorLog struct {
	ID           string          `json:"id"`
	RespondentID string          `json:"respondent_id"`
	SessionID    string          `json:"session_id,omitempty"`
	EventType    string          `json:"event_type"`
	Category     string          `json:"category,omitempty"`
	Action       string          `json:"action,omitempty"`
	Label        string          `json:"label,omitempty"`
	PageURL      string          `json:"page_url,omitempty"`
	Custom       json.RawMessage `json:"custom,omitempty"`
	DeviceType   string          `json:"device_type,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ShareRecord tracks a result shared to a platform. Counters only grow.
type ShareRecord struct {
	ID           string    `json:"id"`
	RespondentID string    `json:"respondent_id"`
	SessionID    string    `json:"session_id"`
	Platform     string    `json:"platform"`
	Views        int       `json:"views"`
	Clicks       int       `json:"clicks"`
	Conversions  int       `json:"conversions"`
	CreatedAt    time.Time `json:"created_at"`
}

// Sync queue operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Entity type tags used by sync queue entries.
const (
	EntityRespondent = "respondent"
	EntitySession    = "session"
	EntityAnswer     = "answer"
	EntityOrder      = "order"
	EntityBehavior   = "behavior"
	EntityShare      = "share"
)

// SyncEntry is one pending mutation awaiting confirmed delivery to the
// system of record. It lives in the same durable store as the entities so
// pending work survives a restart.
type SyncEntry struct {
	ID          string          `json:"id"`
	Entity      string          `json:"entity"`
	Op          string          `json:"op"`
	Payload     json.RawMessage `json:"payload"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempts    int             `json:"attempts"`
	LastAttempt *time.Time      `json:"last_attempt,omitempty"`
}
