package models

import "time"

type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "PENDING"
	CampaignSending   CampaignStatus = "SENDING"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignFailed    CampaignStatus = "FAILED"
)

type MessageStatus string

const (
	MessagePending MessageStatus = "PENDING"
	MessageSent    MessageStatus = "SENT"
	MessageFailed  MessageStatus = "FAILED"
)

type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// SmsCampaign is one bulk-dispatch operation and its aggregate outcome.
// Counters are written exactly once, when the dispatch finishes.
type SmsCampaign struct {
	ID              string         `json:"id" db:"id"`
	OrganizationID  string         `json:"organizationId" db:"organization_id"`
	Name            string         `json:"name" db:"name"`
	Message         string         `json:"message" db:"message"`
	Channel         Channel        `json:"channel" db:"channel"`
	Status          CampaignStatus `json:"status" db:"status"`
	TotalRecipients int            `json:"totalRecipients" db:"total_recipients"`
	SentCount       int            `json:"sentCount" db:"sent_count"`
	FailedCount     int            `json:"failedCount" db:"failed_count"`
	CreatedAt       time.Time      `json:"createdAt" db:"created_at"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
}

// SmsMessage records one delivery attempt outcome per recipient per campaign.
// Written once, after retries are exhausted, and never mutated.
type SmsMessage struct {
	ID             string        `json:"id" db:"id"`
	OrganizationID string        `json:"organizationId" db:"organization_id"`
	CampaignID     string        `json:"campaignId" db:"campaign_id"`
	MemberID       string        `json:"memberId,omitempty" db:"member_id"`
	Phone          string        `json:"phone" db:"phone"`
	Content        string        `json:"content" db:"content"`
	Channel        Channel       `json:"channel" db:"channel"`
	Status         MessageStatus `json:"status" db:"status"`
	Provider       string        `json:"provider" db:"provider"`
	ProviderMsgID  string        `json:"providerMsgId,omitempty" db:"provider_msg_id"`
	Error          string        `json:"error,omitempty" db:"error"`
	SentAt         *time.Time    `json:"sentAt,omitempty" db:"sent_at"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
}
