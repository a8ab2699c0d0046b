package progress

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source names the reporting granularity a snapshot was taken from
type Source string

const (
	SourceDaily   Source = "daily"
	SourceWeekly  Source = "weekly"
	SourceMonthly Source = "monthly"
)

// DailyUpdate is a contractor's end-of-day progress entry
type DailyUpdate struct {
	ID                             int64           `gorm:"primaryKey" json:"id"`
	ProjectID                      int64           `gorm:"not null;index" json:"project_id"`
	ContractorID                   int64           `gorm:"not null" json:"contractor_id"`
	UpdateDate                     time.Time       `gorm:"type:date;not null" json:"update_date"`
	StageName                      string          `json:"stage_name"`
	CumulativeCompletionPercentage decimal.Decimal `gorm:"type:numeric(5,2)" json:"cumulative_completion_percentage"`
	WorkDone                       string          `json:"work_done"`
	WorkingHours                   decimal.Decimal `gorm:"type:numeric(6,2)" json:"working_hours"`
	WeatherCondition               string          `json:"weather_condition"`
	CreatedAt                      time.Time       `json:"created_at"`
}

func (DailyUpdate) TableName() string { return "daily_progress_updates" }

// WeeklySummary rolls a week of work into one entry
type WeeklySummary struct {
	ID                int64           `gorm:"primaryKey" json:"id"`
	ProjectID         int64           `gorm:"not null;index" json:"project_id"`
	ContractorID      int64           `gorm:"not null" json:"contractor_id"`
	WeekStartDate     time.Time       `gorm:"type:date;not null" json:"week_start_date"`
	WeekEndDate       time.Time       `gorm:"type:date;not null" json:"week_end_date"`
	StageName         string          `json:"stage_name"`
	OverallCompletion decimal.Decimal `gorm:"type:numeric(5,2)" json:"overall_completion"`
	SummaryNotes      string          `json:"summary_notes"`
	TotalWorkingHours decimal.Decimal `gorm:"type:numeric(7,2)" json:"total_working_hours"`
	WeatherSummary    string          `json:"weather_summary"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (WeeklySummary) TableName() string { return "weekly_progress_summaries" }

// MonthlyReport is the formal monthly progress report
type MonthlyReport struct {
	ID                   int64           `gorm:"primaryKey" json:"id"`
	ProjectID            int64           `gorm:"not null;index" json:"project_id"`
	ContractorID         int64           `gorm:"not null" json:"contractor_id"`
	ReportMonth          time.Time       `gorm:"type:date;not null" json:"report_month"`
	ReportDate           time.Time       `gorm:"type:date;not null" json:"report_date"`
	CurrentStage         string          `json:"current_stage"`
	CompletionPercentage decimal.Decimal `gorm:"type:numeric(5,2)" json:"completion_percentage"`
	Summary              string          `json:"summary"`
	TotalWorkingHours    decimal.Decimal `gorm:"type:numeric(8,2)" json:"total_working_hours"`
	CreatedAt            time.Time       `json:"created_at"`
}

func (MonthlyReport) TableName() string { return "monthly_progress_reports" }

// Snapshot is the normalized shape shared by all three sources
type Snapshot struct {
	Source               Source          `json:"source"`
	CompletionPercentage decimal.Decimal `json:"completion_percentage"`
	StageName            string          `json:"stage_name"`
	UpdateDate           time.Time       `json:"update_date"`
	WorkDescription      string          `json:"work_description"`
	WorkingHours         decimal.Decimal `json:"working_hours"`
	Weather              string          `json:"weather"`
	LastActivityAt       time.Time       `json:"last_activity_at"`
}

// Progress answers "what is the current progress" for one project.
// Latest is nil and HasUpdates false when no source has any row.
type Progress struct {
	ProjectID       int64           `json:"project_id"`
	HasUpdates      bool            `json:"has_updates"`
	CurrentProgress decimal.Decimal `json:"current_progress"`
	Latest          *Snapshot       `json:"latest"`
}

// activityTime places a reporting date on the timeline using the clock time
// of the row's creation, so two rows for the same day still order.
func activityTime(day, createdAt time.Time) time.Time {
	if day.IsZero() {
		return createdAt.UTC()
	}
	d := day.UTC()
	if createdAt.IsZero() {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	c := createdAt.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), c.Nanosecond(), time.UTC)
}

func (d *DailyUpdate) snapshot() *Snapshot {
	return &Snapshot{
		Source:               SourceDaily,
		CompletionPercentage: d.CumulativeCompletionPercentage,
		StageName:            d.StageName,
		UpdateDate:           d.UpdateDate,
		WorkDescription:      d.WorkDone,
		WorkingHours:         d.WorkingHours,
		Weather:              d.WeatherCondition,
		LastActivityAt:       activityTime(d.UpdateDate, d.CreatedAt),
	}
}

func (w *WeeklySummary) snapshot() *Snapshot {
	return &Snapshot{
		Source:               SourceWeekly,
		CompletionPercentage: w.OverallCompletion,
		StageName:            w.StageName,
		UpdateDate:           w.WeekEndDate,
		WorkDescription:      w.SummaryNotes,
		WorkingHours:         w.TotalWorkingHours,
		Weather:              w.WeatherSummary,
		LastActivityAt:       activityTime(w.WeekEndDate, w.CreatedAt),
	}
}

func (m *MonthlyReport) snapshot() *Snapshot {
	return &Snapshot{
		Source:               SourceMonthly,
		CompletionPercentage: m.CompletionPercentage,
		StageName:            m.CurrentStage,
		UpdateDate:           m.ReportDate,
		WorkDescription:      m.Summary,
		WorkingHours:         m.TotalWorkingHours,
		LastActivityAt:       activityTime(m.ReportDate, m.CreatedAt),
	}
}
