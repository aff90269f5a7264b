package store

import "time"

// ReviewRecord is one ingested review with its computed weights. The
// release column keeps the upstream rc_ver name so existing dashboards and
// ad-hoc SQL keep working.
type ReviewRecord struct {
	ID          string    `gorm:"primaryKey;column:review_id"`
	Release     string    `gorm:"column:rc_ver;index"`
	Content     string    `gorm:"column:content"`
	Rating      int       `gorm:"column:score"`
	ThumbsUp    int       `gorm:"column:thumbs_up"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	Severity    float64   `gorm:"column:severity"`
	Impact      float64   `gorm:"column:impact"`
	Volume      float64   `gorm:"column:volume"`
	FinalWeight float64   `gorm:"column:final_weight"`
}

func (ReviewRecord) TableName() string { return "reviews" }

// ThemeRecord is one discovered theme.
type ThemeRecord struct {
	ID    string `gorm:"primaryKey;column:theme_id"`
	Label string `gorm:"column:theme_label"`
}

func (ThemeRecord) TableName() string { return "themes" }

// AssignmentRecord is one review-to-theme membership edge.
type AssignmentRecord struct {
	ReviewID   string  `gorm:"primaryKey;column:review_id"`
	ThemeID    string  `gorm:"primaryKey;column:theme_id;index"`
	Similarity float64 `gorm:"column:similarity"`
}

func (AssignmentRecord) TableName() string { return "review_themes" }

// SignalRecord is one theme's signal and detection verdicts at one release.
type SignalRecord struct {
	Release          string  `gorm:"primaryKey;column:rc_ver"`
	ThemeID          string  `gorm:"primaryKey;column:theme_id"`
	Signal           float64 `gorm:"column:signal"`
	NormalizedSignal float64 `gorm:"column:normalized_signal"`
	ReviewCount      int     `gorm:"column:review_count"`
	AvgRating        float64 `gorm:"column:avg_rating"`
	Delta            float64 `gorm:"column:delta"`
	IsRegression     bool    `gorm:"column:is_regression"`
	IsPersistent     bool    `gorm:"column:is_persistent"`
}

func (SignalRecord) TableName() string { return "theme_version_signals" }

// BacklogRecord is one ranked backlog entry for the latest release.
type BacklogRecord struct {
	Rank         int     `gorm:"primaryKey;column:rank"`
	Release      string  `gorm:"column:rc_ver"`
	ThemeID      string  `gorm:"column:theme_id"`
	Reach        float64 `gorm:"column:reach"`
	Impact       float64 `gorm:"column:impact"`
	Confidence   float64 `gorm:"column:confidence"`
	Effort       int     `gorm:"column:effort"`
	Score        float64 `gorm:"column:priority_score"`
	IsRegression bool    `gorm:"column:is_regression"`
	IsPersistent bool    `gorm:"column:is_persistent"`
}

func (BacklogRecord) TableName() string { return "priority_backlog" }

// ReleaseRecord keeps the chronological release ordering of the last run.
type ReleaseRecord struct {
	Position int    `gorm:"primaryKey;column:position"`
	Release  string `gorm:"column:rc_ver;uniqueIndex"`
}

func (ReleaseRecord) TableName() string { return "releases" }
