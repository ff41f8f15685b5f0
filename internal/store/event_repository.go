package store

import (
	"context"

	"gorm.io/gorm"

	"venuecal/internal/model"
)

// EventRepository handles CRUD for events.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts event. A second real event for the same parent slot fails
// with ErrDuplicate.
func (r *EventRepository) Create(ctx context.Context, event *model.Event) error {
	return translate("create event", r.db.WithContext(ctx).Create(event).Error)
}

func (r *EventRepository) Get(ctx context.Context, id uint) (*model.Event, error) {
	var event model.Event
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, translate("get event", err)
	}
	return &event, nil
}

// Delete removes an event by ID. Missing events yield ErrNotFound.
func (r *EventRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Event{}, id)
	if res.Error != nil {
		return translate("delete event", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("delete event", gorm.ErrRecordNotFound)
	}
	return nil
}

// FindMaterialized lists the real events converted from parentID's slots,
// ordered by slot date.
func (r *EventRepository) FindMaterialized(ctx context.Context, parentID uint) ([]model.Event, error) {
	var events []model.Event
	if err := r.db.WithContext(ctx).
		Where("parent_event_id = ? AND was_virtual = ?", parentID, true).
		Order("virtual_origin_date").
		Find(&events).Error; err != nil {
		return nil, translate("find materialized", err)
	}
	return events, nil
}

// FindSlot returns the real event backing parentID's slot on date, if any.
func (r *EventRepository) FindSlot(ctx context.Context, parentID uint, date string) (*model.Event, error) {
	var event model.Event
	if err := r.db.WithContext(ctx).
		Where("parent_event_id = ? AND virtual_origin_date = ?", parentID, date).
		First(&event).Error; err != nil {
		return nil, translate("find slot", err)
	}
	return &event, nil
}

func (r *EventRepository) ListRecurring(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if err := r.db.WithContext(ctx).
		Where("is_recurring = ?", true).
		Order("id").
		Find(&events).Error; err != nil {
		return nil, translate("list recurring", err)
	}
	return events, nil
}
