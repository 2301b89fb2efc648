// Package tasks runs long operations in the background and tracks their
// progress in memory with a database copy for durability across restarts.
package tasks

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dqa360-backend/internal/models"
)

// Progress is the live state of one background task
type Progress struct {
	TaskID    string      `json:"task_id"`
	TaskType  string      `json:"task_type"`
	Status    string      `json:"status"` // starting, running, completed, error
	Progress  int         `json:"progress"`
	Messages  []string    `json:"messages"`
	Results   interface{} `json:"results,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// UpdateFunc reports intermediate task state from inside a runner
type UpdateFunc func(status string, progress int, message string)

// Runner is the body of a background task. The returned value becomes the
// task's result; a returned error flips the task to the error status.
type Runner func(update UpdateFunc) (interface{}, error)

// Service owns the task store
type Service struct {
	db    *gorm.DB
	mu    sync.RWMutex
	tasks map[string]*Progress
}

// NewService creates a task service. The database handle may be nil, in
// which case progress lives in memory only.
func NewService(db *gorm.DB) *Service {
	return &Service{
		db:    db,
		tasks: make(map[string]*Progress),
	}
}

// Start launches a runner in the background and returns its task ID
// immediately. Panics inside the runner are recovered into an error status.
func (s *Service) Start(taskType string, run Runner) string {
	taskID := uuid.New().String()

	progress := &Progress{
		TaskID:    taskID,
		TaskType:  taskType,
		Status:    "starting",
		Messages:  []string{},
		UpdatedAt: time.Now(),
	}

	s.mu.Lock()
	s.tasks[taskID] = progress
	s.mu.Unlock()
	s.persist(progress)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("ERROR: Task %s panicked: %v", taskID, r)
				s.update(taskID, "error", 0, fmt.Sprintf("Internal error: %v", r))
			}
		}()

		results, err := run(func(status string, pct int, message string) {
			s.update(taskID, status, pct, message)
		})
		if err != nil {
			s.update(taskID, "error", 0, err.Error())
			return
		}

		s.mu.Lock()
		if p, exists := s.tasks[taskID]; exists {
			p.Results = results
		}
		s.mu.Unlock()
		s.update(taskID, "completed", 100, "Done")
	}()

	return taskID
}

// Get returns the progress of a task, falling back to the database copy
// when it is no longer in memory
func (s *Service) Get(taskID string) (*Progress, error) {
	s.mu.RLock()
	progress, exists := s.tasks[taskID]
	if exists {
		snapshot := *progress
		snapshot.Messages = append([]string(nil), progress.Messages...)
		s.mu.RUnlock()
		return &snapshot, nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("task %s not found", taskID)
	}

	var record models.TaskProgress
	if err := s.db.First(&record, "id = ?", taskID).Error; err != nil {
		return nil, fmt.Errorf("task %s not found", taskID)
	}

	restored := &Progress{
		TaskID:    record.ID,
		TaskType:  record.TaskType,
		Status:    record.Status,
		Progress:  record.Progress,
		Messages:  []string{},
		UpdatedAt: record.UpdatedAt,
	}
	if record.Messages != "" {
		if err := json.Unmarshal([]byte(record.Messages), &restored.Messages); err != nil {
			log.Printf("WARNING: Failed to parse stored messages for task %s: %v", taskID, err)
		}
	}
	if record.Results != "" {
		var results interface{}
		if err := json.Unmarshal([]byte(record.Results), &results); err == nil {
			restored.Results = results
		}
	}
	return restored, nil
}

func (s *Service) update(taskID, status string, pct int, message string) {
	s.mu.Lock()
	progress, exists := s.tasks[taskID]
	if !exists {
		s.mu.Unlock()
		return
	}
	progress.Status = status
	if pct > 0 || status == "error" {
		progress.Progress = pct
	}
	if message != "" {
		progress.Messages = append(progress.Messages, message)
	}
	progress.UpdatedAt = time.Now()
	snapshot := *progress
	snapshot.Messages = append([]string(nil), progress.Messages...)
	s.mu.Unlock()

	s.persist(&snapshot)
}

func (s *Service) persist(progress *Progress) {
	if s.db == nil {
		return
	}

	messages, err := json.Marshal(progress.Messages)
	if err != nil {
		log.Printf("WARNING: Failed to marshal task messages: %v", err)
		messages = []byte("[]")
	}
	results := ""
	if progress.Results != nil {
		if data, err := json.Marshal(progress.Results); err == nil {
			results = string(data)
		}
	}

	record := models.TaskProgress{
		ID:       progress.TaskID,
		TaskType: progress.TaskType,
		Status:   progress.Status,
		Progress: progress.Progress,
		Messages: string(messages),
		Results:  results,
	}
	if err := s.db.Save(&record).Error; err != nil {
		log.Printf("WARNING: Failed to persist task %s: %v", progress.TaskID, err)
	}
}
