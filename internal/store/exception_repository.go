package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"venuecal/internal/calendar"
	"venuecal/internal/model"
	"venuecal/internal/recurrence"
)

// ExceptionRepository persists the skipped dates of recurring events.
type ExceptionRepository struct {
	db *gorm.DB
}

func NewExceptionRepository(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

func (r *ExceptionRepository) List(ctx context.Context, eventID uint) ([]model.Exception, error) {
	var rows []model.Exception
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("date").
		Find(&rows).Error; err != nil {
		return nil, translate("list exceptions", err)
	}
	return rows, nil
}

// Load returns eventID's exceptions as a set. Rows with unparsable dates
// are reported rather than skipped.
func (r *ExceptionRepository) Load(ctx context.Context, eventID uint) (*recurrence.ExceptionSet, error) {
	rows, err := r.List(ctx, eventID)
	if err != nil {
		return nil, err
	}
	set := recurrence.NewExceptionSet()
	for _, row := range rows {
		d, err := calendar.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("load exceptions of event %d: %w", eventID, err)
		}
		set.Add(d, row.Reason)
	}
	return set, nil
}

// Upsert adds the exception or replaces its reason.
func (r *ExceptionRepository) Upsert(ctx context.Context, eventID uint, date calendar.Date, reason string) error {
	row := model.Exception{EventID: eventID, Date: date.String(), Reason: reason}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason"}),
	}).Create(&row).Error
	return translate("upsert exception", err)
}

// Delete removes the exception. Removing an absent date is not an error.
func (r *ExceptionRepository) Delete(ctx context.Context, eventID uint, date calendar.Date) error {
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND date = ?", eventID, date.String()).
		Delete(&model.Exception{}).Error
	return translate("delete exception", err)
}
