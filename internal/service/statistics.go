package service

import (
	"time"

	"gorm.io/gorm"

	"passgate/internal/models"
)

type StatisticsService struct {
	db *gorm.DB
}

// NewStatisticsService creates a new instance of StatisticsService
func NewStatisticsService(db *gorm.DB) *StatisticsService {
	return &StatisticsService{
		db: db,
	}
}

type DeviceUsageStats struct {
	DeviceID     string  `json:"device_id"`
	TotalSuccess int     `json:"total_success"`
	TotalFailed  int     `json:"total_failed"`
	SuccessRate  float64 `json:"success_rate"` // Percentage of successful attempts
}

type UserActivityStats struct {
	UserID      uint   `json:"user_id"`
	FirstName   string `json:"-"`
	LastName    string `json:"-"`
	FullName    string `json:"full_name"`
	TotalAccess int    `json:"total_access"`
}

type TimeSeriesData struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// GetDeviceUsageStats gets usage statistics for all devices or a specific device
func (ss *StatisticsService) GetDeviceUsageStats(deviceID string, start, end time.Time) ([]DeviceUsageStats, error) {
	var stats []DeviceUsageStats

	query := ss.db.Model(&models.AccessRecord{}).
		Select("device_id, " +
			"COUNT(CASE WHEN result = 'success' THEN 1 END) as total_success, " +
			"COUNT(CASE WHEN result = 'failed' THEN 1 END) as total_failed, " +
			"CAST(COUNT(CASE WHEN result = 'success' THEN 1 END) AS FLOAT) / COUNT(*) * 100 as success_rate").
		Where("timestamp BETWEEN ? AND ?", start, end).
		Group("device_id")

	if deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}

	if err := query.Scan(&stats).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// GetMostActiveUsers gets the users with the most successful passes
func (ss *StatisticsService) GetMostActiveUsers(limit int, start, end time.Time) ([]UserActivityStats, error) {
	var results []UserActivityStats

	err := ss.db.Model(&models.AccessRecord{}).
		Select("users.id as user_id, users.first_name, users.last_name, COUNT(*) as total_access").
		Joins("JOIN users ON access_records.user_id = users.id").
		Where("access_records.timestamp BETWEEN ? AND ? AND access_records.result = 'success'", start, end).
		Group("users.id, users.first_name, users.last_name").
		Order("total_access DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].FullName = results[i].FirstName + " " + results[i].LastName
	}

	return results, nil
}

// GetAccessTimeSeries buckets successful passes by hour or day.
func (ss *StatisticsService) GetAccessTimeSeries(deviceID, interval string, start, end time.Time) ([]TimeSeriesData, error) {
	var timeFormat string
	switch interval {
	case "hour":
		timeFormat = "2006-01-02 15:00:00"
	case "day":
		timeFormat = "2006-01-02 00:00:00"
	default:
		timeFormat = "2006-01-02 00:00:00"
	}

	query := ss.db.Model(&models.AccessRecord{}).
		Select("timestamp, result").
		Where("timestamp BETWEEN ? AND ? AND result = 'success'", start, end).
		Order("timestamp ASC")

	if deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}

	var rows []models.AccessRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	// Bucketing happens in Go so the query stays portable between
	// sqlite and mysql.
	buckets := make(map[string]int)
	order := []string{}
	for _, r := range rows {
		key := r.Timestamp.Format(timeFormat)
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key]++
	}

	data := make([]TimeSeriesData, 0, len(order))
	for _, key := range order {
		t, err := time.Parse(timeFormat, key)
		if err != nil {
			continue
		}
		data = append(data, TimeSeriesData{Timestamp: t, Count: buckets[key]})
	}

	return data, nil
}
