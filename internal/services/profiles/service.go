// Package profiles manages saved DHIS2 instance connections. Passwords are
// encrypted at rest and never leave the service in responses.
package profiles

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"dqa360-backend/internal/api"
	"dqa360-backend/internal/crypto"
	"dqa360-backend/internal/models"
)

// Connector is the slice of the API client the connection test needs
type Connector interface {
	TestConnection() (map[string]interface{}, error)
}

// UpsertRequest carries the editable fields of a profile. Password is
// optional on update; an empty value keeps the stored one.
type UpsertRequest struct {
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Service persists connection profiles
type Service struct {
	db        *gorm.DB
	newClient func(baseURL, username, password string) Connector
}

// NewService creates a profile service talking to real DHIS2 instances
func NewService(db *gorm.DB) *Service {
	return &Service{
		db: db,
		newClient: func(baseURL, username, password string) Connector {
			return api.NewClient(baseURL, username, password)
		},
	}
}

// List returns all profiles, newest first
func (s *Service) List() ([]models.ConnectionProfile, error) {
	var profiles []models.ConnectionProfile
	if err := s.db.Order("created_at DESC").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// Get loads one profile by ID
func (s *Service) Get(id string) (*models.ConnectionProfile, error) {
	var profile models.ConnectionProfile
	if err := s.db.First(&profile, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &profile, nil
}

// Create stores a new profile with an encrypted password
func (s *Service) Create(req UpsertRequest) (*models.ConnectionProfile, error) {
	if req.Name == "" || req.BaseURL == "" || req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("name, base_url, username and password are required")
	}

	encrypted, err := crypto.EncryptPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	profile := models.ConnectionProfile{
		Name:        req.Name,
		Owner:       req.Owner,
		BaseURL:     req.BaseURL,
		Username:    req.Username,
		PasswordEnc: encrypted,
	}
	if err := s.db.Create(&profile).Error; err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return &profile, nil
}

// Update modifies an existing profile. An empty password keeps the stored
// credential; any connection state is reset until the next test.
func (s *Service) Update(id string, req UpsertRequest) (*models.ConnectionProfile, error) {
	profile, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("profile %s not found", id)
	}

	if req.Name != "" {
		profile.Name = req.Name
	}
	if req.Owner != "" {
		profile.Owner = req.Owner
	}
	if req.BaseURL != "" {
		profile.BaseURL = req.BaseURL
	}
	if req.Username != "" {
		profile.Username = req.Username
	}
	if req.Password != "" {
		encrypted, err := crypto.EncryptPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt password: %w", err)
		}
		profile.PasswordEnc = encrypted
	}
	profile.Connected = false

	if err := s.db.Save(profile).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}

// Delete removes a profile
func (s *Service) Delete(id string) error {
	if err := s.db.Delete(&models.ConnectionProfile{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// Test pings api/system/info with the profile's credentials and records the
// outcome on the profile
func (s *Service) Test(id string) (*models.ConnectionProfile, error) {
	profile, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("profile %s not found", id)
	}

	password, err := crypto.DecryptPassword(profile.PasswordEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password: %w", err)
	}

	now := time.Now()
	profile.LastTestedAt = &now

	info, testErr := s.newClient(profile.BaseURL, profile.Username, password).TestConnection()
	if testErr != nil {
		profile.Connected = false
		if saveErr := s.db.Save(profile).Error; saveErr != nil {
			return nil, fmt.Errorf("failed to record test outcome: %w", saveErr)
		}
		return profile, fmt.Errorf("connection test failed: %w", testErr)
	}

	profile.Connected = true
	if name, ok := info["systemName"].(string); ok {
		profile.InstanceName = name
	}
	if version, ok := info["version"].(string); ok {
		profile.Version = version
	}
	if err := s.db.Save(profile).Error; err != nil {
		return nil, fmt.Errorf("failed to record test outcome: %w", err)
	}
	return profile, nil
}

// Client builds an authenticated API client from a stored profile
func (s *Service) Client(id string) (*api.Client, error) {
	profile, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("profile %s not found", id)
	}
	password, err := crypto.DecryptPassword(profile.PasswordEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password: %w", err)
	}
	return api.NewClient(profile.BaseURL, profile.Username, password), nil
}
