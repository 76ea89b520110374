package store

import (
	"errors"
	"math"
	"time"

	"gorm.io/gorm"

	"passgate/internal/models"
)

type AccessRecordStore struct {
	db *gorm.DB
}

func NewAccessRecordStore(db *gorm.DB) *AccessRecordStore {
	return &AccessRecordStore{db: db}
}

// RecordQuery narrows and pages the ledger listing. Zero values mean
// "no filter".
type RecordQuery struct {
	Page      int
	Limit     int
	UserID    uint
	DeviceID  string
	Result    models.AccessResult
	Direction models.Direction
	StartDate time.Time
	EndDate   time.Time
	SortBy    string
	SortOrder string
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type Statistics struct {
	TotalCount   int64   `json:"totalCount"`
	SuccessCount int64   `json:"successCount"`
	FailedCount  int64   `json:"failedCount"`
	InCount      int64   `json:"inCount"`
	OutCount     int64   `json:"outCount"`
	SuccessRate  float64 `json:"successRate"`
}

// StatsFilters narrows GetStatistics and CountByDateRange.
type StatsFilters struct {
	UserID     uint
	DeviceID   string
	Result     models.AccessResult
	MerchantID uint
	StartDate  time.Time
	EndDate    time.Time
}

var sortColumns = map[string]string{
	"timestamp": "timestamp",
	"deviceId":  "device_id",
	"userId":    "user_id",
	"result":    "result",
	"id":        "id",
}

// Create appends one ledger entry and returns the inserted row as
// filled in by the database, id and timestamps included.
func (s *AccessRecordStore) Create(record *models.AccessRecord) (*models.AccessRecord, error) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	if err := s.db.Create(record).Error; err != nil {
		return nil, err
	}

	return record, nil
}

func (s *AccessRecordStore) FindByID(id uint) (*models.AccessRecord, error) {
	var record models.AccessRecord
	if err := s.db.Preload("User").Preload("Passcode").First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *AccessRecordStore) FindAll(q RecordQuery) ([]models.AccessRecord, *Pagination, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}

	query := s.db.Model(&models.AccessRecord{})

	if q.UserID > 0 {
		query = query.Where("user_id = ?", q.UserID)
	}
	if q.DeviceID != "" {
		query = query.Where("device_id = ?", q.DeviceID)
	}
	if q.Result != "" {
		query = query.Where("result = ?", q.Result)
	}
	if q.Direction != "" {
		query = query.Where("direction = ?", q.Direction)
	}
	if !q.StartDate.IsZero() {
		query = query.Where("timestamp >= ?", q.StartDate)
	}
	if !q.EndDate.IsZero() {
		query = query.Where("timestamp <= ?", q.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = "timestamp"
	}
	order := "DESC"
	if q.SortOrder == "asc" {
		order = "ASC"
	}

	var records []models.AccessRecord
	err := query.
		Order(column + " " + order).
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		Find(&records).Error
	if err != nil {
		return nil, nil, err
	}

	pagination := &Pagination{
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
	}

	return records, pagination, nil
}

func (s *AccessRecordStore) CountByDateRange(start, end time.Time, filters StatsFilters) (int64, error) {
	query := s.db.Model(&models.AccessRecord{}).
		Where("timestamp >= ? AND timestamp <= ?", start, end)
	query = s.applyStatsFilters(query, filters)

	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (s *AccessRecordStore) FindByUserID(userID uint, limit int) ([]models.AccessRecord, error) {
	return s.findRecent(s.db.Where("user_id = ?", userID), limit)
}

func (s *AccessRecordStore) FindByDeviceID(deviceID string, limit int) ([]models.AccessRecord, error) {
	return s.findRecent(s.db.Where("device_id = ?", deviceID), limit)
}

func (s *AccessRecordStore) FindByPasscodeID(passcodeID uint, limit int) ([]models.AccessRecord, error) {
	return s.findRecent(s.db.Where("passcode_id = ?", passcodeID), limit)
}

func (s *AccessRecordStore) FindByResult(result models.AccessResult, limit int) ([]models.AccessRecord, error) {
	return s.findRecent(s.db.Where("result = ?", result), limit)
}

func (s *AccessRecordStore) findRecent(query *gorm.DB, limit int) ([]models.AccessRecord, error) {
	if limit < 1 {
		limit = 50
	}

	var records []models.AccessRecord
	err := query.Order("timestamp DESC").Limit(limit).Find(&records).Error
	return records, err
}

// GetStatistics aggregates the ledger into counters and a success rate
// rounded to two decimals. An empty window yields a zero rate.
func (s *AccessRecordStore) GetStatistics(filters StatsFilters) (*Statistics, error) {
	base := s.db.Model(&models.AccessRecord{})
	if !filters.StartDate.IsZero() {
		base = base.Where("timestamp >= ?", filters.StartDate)
	}
	if !filters.EndDate.IsZero() {
		base = base.Where("timestamp <= ?", filters.EndDate)
	}
	base = s.applyStatsFilters(base, filters)

	var stats Statistics
	err := base.
		Select("COUNT(*) as total_count, " +
			"COUNT(CASE WHEN result = 'success' THEN 1 END) as success_count, " +
			"COUNT(CASE WHEN result = 'failed' THEN 1 END) as failed_count, " +
			"COUNT(CASE WHEN direction = 'in' THEN 1 END) as in_count, " +
			"COUNT(CASE WHEN direction = 'out' THEN 1 END) as out_count").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	if stats.TotalCount > 0 {
		rate := float64(stats.SuccessCount) / float64(stats.TotalCount) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}

	return &stats, nil
}

// BatchCreate appends every record in one transaction; either all of
// them land in the ledger or none do.
func (s *AccessRecordStore) BatchCreate(records []models.AccessRecord) ([]models.AccessRecord, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i := range records {
			if records[i].Timestamp.IsZero() {
				records[i].Timestamp = time.Now()
			}
			if err := tx.Create(&records[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Cleanup removes records older than the cutoff. This is the only path
// that deletes from the ledger.
func (s *AccessRecordStore) Cleanup(daysToKeep int) (int64, error) {
	if daysToKeep < 1 {
		return 0, errors.New("daysToKeep must be at least 1")
	}

	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	result := s.db.Unscoped().
		Where("timestamp < ?", cutoff).
		Delete(&models.AccessRecord{})

	return result.RowsAffected, result.Error
}

func (s *AccessRecordStore) applyStatsFilters(query *gorm.DB, filters StatsFilters) *gorm.DB {
	if filters.UserID > 0 {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.DeviceID != "" {
		query = query.Where("device_id = ?", filters.DeviceID)
	}
	if filters.Result != "" {
		query = query.Where("result = ?", filters.Result)
	}
	if filters.MerchantID > 0 {
		merchantUsers := s.db.Model(&models.User{}).
			Select("id").
			Where("merchant_id = ?", filters.MerchantID)
		query = query.Where("user_id IN (?)", merchantUsers)
	}
	return query
}
