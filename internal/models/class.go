package models

import (
	"time"

	"gorm.io/gorm"
)

type Class struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Subject     *string `json:"subject" gorm:"size:100"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Enrollments []Enrollment `json:"enrollments" gorm:"foreignKey:ClassID"`
	Quizzes     []Quiz       `json:"quizzes" gorm:"foreignKey:ClassID"`
	Creator     User         `json:"creator" gorm:"foreignKey:CreatedBy"`

	// Computed fields (not stored)
	StudentCount int `json:"student_count" gorm:"-"`
	QuizCount    int `json:"quiz_count" gorm:"-"`
}

// Enrollment links a student to a class. One row per (class, student).
type Enrollment struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	ClassID   uint   `json:"class_id" gorm:"not null;index;uniqueIndex:idx_class_student"`
	StudentID string `json:"student_id" gorm:"not null;index;size:255;uniqueIndex:idx_class_student"`

	EnrolledBy string    `json:"enrolled_by" gorm:"not null;size:255"` // teacher who added the student
	EnrolledAt time.Time `json:"enrolled_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Class   Class `json:"class" gorm:"foreignKey:ClassID"`
	Student User  `json:"student" gorm:"foreignKey:StudentID"`
}

func (Class) TableName() string {
	return "classes"
}

func (Enrollment) TableName() string {
	return "enrollments"
}
