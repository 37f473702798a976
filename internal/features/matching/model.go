package matching

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Confidence tiers
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Match review statuses
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// MatchCandidate is a scored pairing of a lost and a found report, stored
// against the report whose pass produced it
type MatchCandidate struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SourceReportID    primitive.ObjectID `bson:"sourceReportId" json:"sourceReportId"`
	CandidateReportID primitive.ObjectID `bson:"candidateReportId" json:"candidateReportId"`
	LostReportID      primitive.ObjectID `bson:"lostReportId" json:"lostReportId"`
	FoundReportID     primitive.ObjectID `bson:"foundReportId" json:"foundReportId"`
	Score             float64            `bson:"score" json:"score"`
	Confidence        string             `bson:"confidence" json:"confidence"`
	Reasons           []string           `bson:"reasons" json:"reasons"`
	Status            string             `bson:"status" json:"status"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Involves reports whether reportID is either side of the match
func (m *MatchCandidate) Involves(reportID primitive.ObjectID) bool {
	return m.LostReportID == reportID || m.FoundReportID == reportID
}

// Result is the scorer output for one pair
type Result struct {
	Score      float64  `json:"score"`
	Confidence string   `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// PassResult summarizes one auto-match pass
type PassResult struct {
	ReportID      primitive.ObjectID `json:"reportId"`
	PassID        string             `json:"passId"`
	Skipped       bool               `json:"skipped"`
	Considered    int                `json:"considered"`
	Kept          []MatchCandidate   `json:"kept"`
	Created       int                `json:"created"`
	Notified      int                `json:"notified"`
	Duration      time.Duration      `json:"-"`
	DurationMilli int64              `json:"durationMs"`
}

// Config bounds an auto-match pass
type Config struct {
	MinScore        float64
	TopN            int
	CandidateWindow int
	RecencyDays     int
	Timeout         time.Duration
	LockTTL         time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MinScore:        20,
		TopN:            3,
		CandidateWindow: 200,
		RecencyDays:     90,
		Timeout:         20 * time.Second,
		LockTTL:         30 * time.Second,
	}
}

// Response DTOs

type MatchListResponse struct {
	ReportID primitive.ObjectID `json:"reportId"`
	Matches  []MatchCandidate   `json:"matches"`
}

type ReviewResponse struct {
	Match        *MatchCandidate `json:"match"`
	AutoRejected int64           `json:"autoRejected"`
}
