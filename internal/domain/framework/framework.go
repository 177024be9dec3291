package framework

import (
	"fmt"
	"time"
)

// Framework is a named, versioned collection of rules representing one
// best-practice or compliance standard. Published frameworks are immutable
// except for status transitions; rules are stored and fetched separately
// so their lifecycle is independent of the framework record.
type Framework struct {
	ID         string            `json:"id"`
	Type       FrameworkType     `json:"type"`
	Name       string            `json:"name"`
	Version    string            `json:"version"`
	Status     FrameworkStatus   `json:"status"`
	Categories []string          `json:"categories"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type FrameworkType string

const (
	TypeGenericBestPractice FrameworkType = "generic-best-practice"
	TypePostureManagement   FrameworkType = "posture-management"
	TypeCustom              FrameworkType = "custom"
)

func (t FrameworkType) Valid() bool {
	switch t {
	case TypeGenericBestPractice, TypePostureManagement, TypeCustom:
		return true
	}
	return false
}

type FrameworkStatus string

const (
	StatusActive     FrameworkStatus = "active"
	StatusDraft      FrameworkStatus = "draft"
	StatusDeprecated FrameworkStatus = "deprecated"
	StatusArchived   FrameworkStatus = "archived"
)

func (s FrameworkStatus) Valid() bool {
	switch s {
	case StatusActive, StatusDraft, StatusDeprecated, StatusArchived:
		return true
	}
	return false
}

// NewFramework creates a framework in draft status.
func NewFramework(id string, frameworkType FrameworkType, name, version string) *Framework {
	now := time.Now()
	return &Framework{
		ID:        id,
		Type:      frameworkType,
		Name:      name,
		Version:   version,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Activate publishes the framework.
func (f *Framework) Activate() error {
	if f.Status == StatusActive {
		return fmt.Errorf("framework %s is already active", f.ID)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("cannot activate invalid framework: %w", err)
	}
	f.Status = StatusActive
	f.UpdatedAt = time.Now()
	return nil
}

// Deprecate marks an active framework as deprecated.
func (f *Framework) Deprecate() error {
	if f.Status != StatusActive {
		return fmt.Errorf("can only deprecate active frameworks")
	}
	f.Status = StatusDeprecated
	f.UpdatedAt = time.Now()
	return nil
}

// Validate validates the framework record.
func (f *Framework) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("framework id cannot be empty")
	}
	if f.Name == "" {
		return fmt.Errorf("framework name cannot be empty")
	}
	if !f.Type.Valid() {
		return fmt.Errorf("invalid framework type: %s", f.Type)
	}
	if !f.Status.Valid() {
		return fmt.Errorf("invalid framework status: %s", f.Status)
	}
	return nil
}
