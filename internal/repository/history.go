package repository

import (
	"time"

	"mimic/internal/db"
	"mimic/internal/model"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

func (r *HistoryRepository) Save(result model.MirrorResult, watchRoot string) error {
	status := model.StatusSuccess
	errMsg := ""
	switch {
	case result.Err != nil:
		status = model.StatusFailed
		errMsg = result.Err.Error()
	case result.Op == model.OpSkip:
		status = model.StatusSkipped
		errMsg = result.Reason
	}

	history := model.History{
		Status:     status,
		Op:         string(result.Op),
		EventKind:  string(result.Event.Kind),
		WatchRoot:  watchRoot,
		SrcPath:    result.SrcPath,
		DstPath:    result.DstPath,
		ErrMsg:     errMsg,
		MirroredAt: time.Now(),
	}

	return db.DB.Create(&history).Error
}

type Stats struct {
	Total   int64
	Success int64
	Failed  int64
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.History{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("status = ?", model.StatusSuccess).
		Count(&stats.Success).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("status = ?", model.StatusFailed).
		Count(&stats.Failed).Error; err != nil {
		return stats, err
	}

	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Order("mirrored_at desc").
		Order("id desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetFailed() ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Where("status = ?", model.StatusFailed).
		Order("mirrored_at desc").
		Find(&histories)

	return histories, result.Error
}
