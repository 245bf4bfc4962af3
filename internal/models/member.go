package models

import "time"

type Member struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organizationId" db:"organization_id"`
	FirstName      string    `json:"firstName" db:"first_name"`
	LastName       string    `json:"lastName" db:"last_name"`
	Phone          string    `json:"phone,omitempty" db:"phone"`
	Email          string    `json:"email,omitempty" db:"email"`
	Status         string    `json:"status" db:"status"` // ACTIVE or PASSIVE
	JoinedAt       time.Time `json:"joinedAt" db:"joined_at"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

type MemberNote struct {
	ID        string    `json:"id" db:"id"`
	MemberID  string    `json:"memberId" db:"member_id"`
	AuthorID  string    `json:"authorId" db:"author_id"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
