package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dernekpro/backend/internal/audit"
	"github.com/dernekpro/backend/internal/config"
	"github.com/dernekpro/backend/internal/models"
	"github.com/dernekpro/backend/internal/sms"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrEmptyMessage rejects a dispatch before anything is persisted.
var ErrEmptyMessage = errors.New("message must not be empty")

// RateLimitError is returned before any campaign row is created when the
// per-minute cap would be exceeded. Safe to retry later.
type RateLimitError struct {
	Cap       int
	InWindow  int
	Requested int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("per-minute SMS limit exceeded: cap=%d, in window=%d, requested=%d",
		e.Cap, e.InWindow, e.Requested)
}

// CapacityError is returned when the deduplicated recipient count is over
// the safety ceiling; the caller must split the request.
type CapacityError struct {
	Count int
	Max   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("too many recipients (%d), limit is %d", e.Count, e.Max)
}

// BulkSendOptions describes one dispatch request.
type BulkSendOptions struct {
	OrganizationID string
	MemberIDs      []string
	Phones         []string
	Message        string
	CampaignName   string
	Channel        models.Channel
	DryRun         bool
	Personalize    *bool // nil means use the configured default
}

// BulkResult is the campaign-level summary returned to the caller.
type BulkResult struct {
	DryRun     bool   `json:"dryRun"`
	CampaignID string `json:"campaignId,omitempty"`
	Total      int    `json:"total"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}

// recipient is dispatch-scoped: either a member (with personalization
// fields) or a bare phone number.
type recipient struct {
	memberID  string
	phone     string
	firstName string
	lastName  string
}

// SmsService runs the bulk dispatch pipeline: recipient resolution,
// dedup, rate limiting, batched provider calls with retry, and
// per-recipient delivery records.
type SmsService struct {
	db       *sql.DB
	redis    *redis.Client
	provider sms.Provider
	cfg      *config.SMSConfig
	audit    *audit.Logger
}

func NewSmsService(db *sql.DB, redisClient *redis.Client, provider sms.Provider, cfg *config.SMSConfig) *SmsService {
	return &SmsService{
		db:       db,
		redis:    redisClient,
		provider: provider,
		cfg:      cfg,
		audit:    audit.NewLogger(),
	}
}

// NormalizePhone strips everything except digits and a leading '+'.
func NormalizePhone(p string) string {
	var b strings.Builder
	for i, c := range p {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		} else if c == '+' && i == 0 {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// SendBulk runs one dispatch to completion. Recipients are processed
// sequentially batch by batch; an individual recipient's failure is
// recorded and never aborts the run. Errors returned before the campaign
// row is created (validation, capacity, rate limit) leave no state behind.
func (s *SmsService) SendBulk(ctx context.Context, opts BulkSendOptions) (*BulkResult, error) {
	if strings.TrimSpace(opts.Message) == "" {
		return nil, ErrEmptyMessage
	}

	channel := opts.Channel
	if channel == "" {
		channel = models.ChannelSMS
	}

	personalize := s.cfg.PersonalizeDefault
	if opts.Personalize != nil {
		personalize = *opts.Personalize
	}

	targets, err := s.resolveRecipients(opts.OrganizationID, opts.MemberIDs, opts.Phones)
	if err != nil {
		return nil, err
	}
	targets = dedupeByPhone(targets)

	if len(targets) > s.cfg.MaxRecipients {
		return nil, &CapacityError{Count: len(targets), Max: s.cfg.MaxRecipients}
	}
	if len(targets) == 0 {
		return &BulkResult{DryRun: opts.DryRun}, nil
	}

	// Rate limit before the campaign row exists, so a rejection never
	// leaves an orphaned campaign behind.
	if err := s.ensureRateLimit(opts.OrganizationID, len(targets)); err != nil {
		return nil, err
	}

	campaignID := uuid.New().String()
	campaignName := opts.CampaignName
	if campaignName == "" {
		campaignName = "Kampanya-" + time.Now().Format(time.RFC3339)
	}
	status := models.CampaignSending
	if opts.DryRun {
		status = models.CampaignCompleted
	}

	_, err = s.db.Exec(`
		INSERT INTO sms_campaigns
		(id, organization_id, name, message, channel, status, total_recipients, sent_count, failed_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8)
	`, campaignID, opts.OrganizationID, campaignName, opts.Message, channel, status, len(targets), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	if opts.DryRun {
		return &BulkResult{DryRun: true, CampaignID: campaignID, Total: len(targets)}, nil
	}

	var sentCount, failedCount int
	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	for i := 0; i < len(targets); i += batchSize {
		end := i + batchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[i:end]

		if personalize {
			// Content differs per recipient, so send individually.
			for _, target := range batch {
				content := sms.RenderTemplate(opts.Message, target.firstName, target.lastName)

				var last sms.SendResult
				for attempt := 0; attempt <= s.cfg.RetryLimit; attempt++ {
					last = s.provider.SendSingle(ctx, target.phone, content)
					if last.Success {
						break
					}
				}

				if err := s.recordMessage(opts.OrganizationID, campaignID, target, content, channel, last); err != nil {
					return nil, fmt.Errorf("failed to record delivery: %w", err)
				}
				if last.Success {
					sentCount++
				} else {
					failedCount++
				}
			}
		} else {
			phones := make([]string, len(batch))
			for j, t := range batch {
				phones[j] = t.phone
			}
			results := s.provider.SendBulk(ctx, phones, opts.Message)

			for j, target := range batch {
				res := results[j]
				// Failed bulk entries retry on the single-send path.
				for attempt := 0; !res.Success && attempt < s.cfg.RetryLimit; attempt++ {
					res = s.provider.SendSingle(ctx, target.phone, opts.Message)
				}

				if err := s.recordMessage(opts.OrganizationID, campaignID, target, opts.Message, channel, res); err != nil {
					return nil, fmt.Errorf("failed to record delivery: %w", err)
				}
				if res.Success {
					sentCount++
				} else {
					failedCount++
				}
			}
		}
	}

	if err := s.finalizeCampaign(campaignID, sentCount, failedCount); err != nil {
		return nil, fmt.Errorf("failed to finalize campaign: %w", err)
	}

	result := &BulkResult{
		CampaignID: campaignID,
		Total:      len(targets),
		Sent:       sentCount,
		Failed:     failedCount,
	}

	s.audit.LogDispatch(opts.OrganizationID, campaignID, result.Total, sentCount, failedCount)
	s.publishCampaignEvent(ctx, opts.OrganizationID, result)

	return result, nil
}

// resolveRecipients joins member-derived phones (org-scoped, members with
// a phone on file) with explicitly supplied numbers. All phones are
// normalized here.
func (s *SmsService) resolveRecipients(orgID string, memberIDs, phones []string) ([]recipient, error) {
	targets := []recipient{}

	if len(memberIDs) > 0 {
		query, args := memberPhoneQuery(orgID, memberIDs)
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve member phones: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t recipient
			if err := rows.Scan(&t.memberID, &t.phone, &t.firstName, &t.lastName); err != nil {
				return nil, err
			}
			t.phone = NormalizePhone(t.phone)
			if t.phone != "" {
				targets = append(targets, t)
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	for _, p := range phones {
		if norm := NormalizePhone(p); norm != "" {
			targets = append(targets, recipient{phone: norm})
		}
	}

	return targets, nil
}

func memberPhoneQuery(orgID string, memberIDs []string) (string, []any) {
	args := []any{orgID}
	placeholders := make([]string, len(memberIDs))
	for i, id := range memberIDs {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	query := fmt.Sprintf(`
		SELECT id, phone, first_name, last_name FROM members
		WHERE organization_id = $1 AND phone IS NOT NULL AND phone <> ''
		AND id IN (%s)
	`, strings.Join(placeholders, ", "))
	return query, args
}

// dedupeByPhone keeps the first occurrence per normalized phone, so a
// member-derived entry wins over a later bare number and keeps its
// personalization fields.
func dedupeByPhone(targets []recipient) []recipient {
	seen := make(map[string]bool, len(targets))
	out := targets[:0]
	for _, t := range targets {
		if seen[t.phone] {
			continue
		}
		seen[t.phone] = true
		out = append(out, t)
	}
	return out
}

// ensureRateLimit counts messages dispatched for the org inside the
// trailing window. This is an advisory check: two concurrent dispatches
// can both pass it and overshoot the cap. Accepted as a soft operational
// safeguard, not a billing control.
func (s *SmsService) ensureRateLimit(orgID string, toSend int) error {
	limit := s.cfg.PerMinuteCap
	if limit <= 0 {
		return nil
	}

	windowStart := time.Now().Add(-s.cfg.RateLimitWindow)
	var inWindow int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sms_messages
		WHERE organization_id = $1 AND created_at >= $2 AND status IN ('PENDING', 'SENT')
	`, orgID, windowStart).Scan(&inWindow)
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}

	if inWindow+toSend > limit {
		return &RateLimitError{Cap: limit, InWindow: inWindow, Requested: toSend}
	}
	return nil
}

func (s *SmsService) recordMessage(orgID, campaignID string, target recipient, content string, channel models.Channel, res sms.SendResult) error {
	status := models.MessageFailed
	var sentAt *time.Time
	if res.Success {
		status = models.MessageSent
		now := time.Now()
		sentAt = &now
	}

	var memberID any
	if target.memberID != "" {
		memberID = target.memberID
	}

	_, err := s.db.Exec(`
		INSERT INTO sms_messages
		(id, organization_id, campaign_id, member_id, phone, content, channel, status, provider, provider_msg_id, error, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, uuid.New().String(), orgID, campaignID, memberID, target.phone, content, channel,
		status, res.Provider, res.ProviderMessageID, res.Error, sentAt, time.Now())
	return err
}

// finalizeCampaign writes the terminal status exactly once. FAILED only
// when every single send failed.
func (s *SmsService) finalizeCampaign(campaignID string, sentCount, failedCount int) error {
	status := models.CampaignCompleted
	if sentCount == 0 && failedCount > 0 {
		status = models.CampaignFailed
	}

	_, err := s.db.Exec(`
		UPDATE sms_campaigns
		SET status = $1, sent_count = $2, failed_count = $3, completed_at = $4
		WHERE id = $5
	`, status, sentCount, failedCount, time.Now(), campaignID)
	return err
}

// publishCampaignEvent pushes the summary to a Redis list for downstream
// consumers (dashboards, webhooks). Best effort.
func (s *SmsService) publishCampaignEvent(ctx context.Context, orgID string, result *BulkResult) {
	if s.redis == nil {
		return
	}

	data, err := json.Marshal(map[string]any{
		"organizationId": orgID,
		"campaignId":     result.CampaignID,
		"total":          result.Total,
		"sent":           result.Sent,
		"failed":         result.Failed,
		"completedAt":    time.Now().Unix(),
	})
	if err != nil {
		return
	}

	if err := s.redis.RPush(ctx, "sms_campaign_events", data).Err(); err != nil {
		log.Printf("[SMS] Failed to publish campaign event for %s: %v", result.CampaignID, err)
	}
}
