package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/coursepulse/coursepulse/internal/models"
	"gorm.io/gorm"
)

// SettingsService reads and writes the runtime-editable settings rows.
// Values here override the config-file seeds once an admin edits them.
type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

func (s *SettingsService) Get(key string) (string, error) {
	var cfg models.SystemConfig
	if err := s.db.Where("config_key = ?", key).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *SettingsService) GetWithDefault(key, defaultValue string) string {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

func (s *SettingsService) Set(key, value string) error {
	var cfg models.SystemConfig
	err := s.db.Where("config_key = ?", key).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		cfg = models.SystemConfig{
			Key:   key,
			Value: value,
		}
		return s.db.Create(&cfg).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&cfg).Update("value", value).Error
}

func (s *SettingsService) GetByGroup(group string) ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.Where("`group` = ?", group).Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// PrioritySubjects returns the subjects refreshed at urgent priority.
func (s *SettingsService) PrioritySubjects() []string {
	raw, err := s.Get(models.ConfigKeyPrioritySubjects)
	if err != nil || raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *SettingsService) SetPrioritySubjects(subjects []string) error {
	for i, subj := range subjects {
		subjects[i] = strings.ToUpper(strings.TrimSpace(subj))
	}
	return s.Set(models.ConfigKeyPrioritySubjects, strings.Join(subjects, ","))
}

// MinSpacing returns the minimum gap between two scrapes of one subject.
func (s *SettingsService) MinSpacing(fallback time.Duration) time.Duration {
	raw, err := s.Get(models.ConfigKeyMinSpacingMin)
	if err != nil {
		return fallback
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < 0 {
		return fallback
	}
	return time.Duration(minutes) * time.Minute
}
