package recurrence

// RawRule is the persisted rule layout as submitted by the event form and
// stored alongside the event. Field names are part of the storage schema.
type RawRule struct {
	Pattern     string   `json:"pattern"`
	Interval    int      `json:"interval,omitempty"`
	Weekdays    []int    `json:"weekdays,omitempty"`
	StartDate   string   `json:"startDate"`
	EndType     string   `json:"endType,omitempty"`
	EndDate     string   `json:"endDate,omitempty"`
	EndCount    int      `json:"endCount,omitempty"`
	CustomDates []string `json:"customDates,omitempty"`
	TimeStart   string   `json:"timeStart,omitempty"`
	TimeEnd     string   `json:"timeEnd,omitempty"`
}

// Persisted pattern and end type values.
const (
	PatternDaily   = "daily"
	PatternWeekly  = "weekly"
	PatternMonthly = "monthly"
	PatternCustom  = "custom"

	EndTypeDate  = "date"
	EndTypeCount = "count"
	EndTypeNone  = "none"
)
