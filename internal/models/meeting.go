package models

import "time"

type Meeting struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organizationId" db:"organization_id"`
	Title          string    `json:"title" db:"title"`
	Location       string    `json:"location,omitempty" db:"location"`
	ScheduledAt    time.Time `json:"scheduledAt" db:"scheduled_at"`
	Minutes        string    `json:"minutes,omitempty" db:"minutes"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}
