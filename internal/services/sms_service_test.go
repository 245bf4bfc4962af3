package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dernekpro/backend/internal/config"
	"github.com/dernekpro/backend/internal/models"
	"github.com/dernekpro/backend/internal/sms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testSMSConfig() *config.SMSConfig {
	return &config.SMSConfig{
		Provider:           "dummy",
		PerMinuteCap:       100,
		RateLimitWindow:    time.Minute,
		RetryLimit:         2,
		BatchSize:          50,
		MaxRecipients:      1000,
		PersonalizeDefault: true,
	}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+905551234567", NormalizePhone("+90 555 123 45 67"))
	assert.Equal(t, "+905551234567", NormalizePhone("+90 (555) 123-45-67"))
	assert.Equal(t, "05551234567", NormalizePhone("0555 123 45 67"))
	assert.Equal(t, "905551234567", NormalizePhone("90+5551234567"))
	assert.Equal(t, "", NormalizePhone("abc"))
	assert.Equal(t, "+", NormalizePhone("+"))
}

func TestSmsService_SendBulk_EmptyMessage(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	provider := new(MockProvider)
	service := NewSmsService(db, nil, provider, testSMSConfig())

	_, err = service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		Phones:         []string{"+905551234567"},
		Message:        "   ",
	})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.NoError(t, mockDB.ExpectationsWereMet())
	provider.AssertNotCalled(t, "SendSingle")
}

func TestSmsService_SendBulk_NoRecipients(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	provider := new(MockProvider)
	service := NewSmsService(db, nil, provider, testSMSConfig())

	result, err := service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		Phones:         []string{"not-a-number"},
		Message:        "Aidat hatirlatmasi",
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.CampaignID)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSmsService_SendBulk_DeduplicatesPhones(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	provider := new(MockProvider)
	provider.On("SendSingle", mock.Anything, "+905551234567", "Aidat hatirlatmasi").
		Return(sms.SendResult{Success: true, Provider: "dummy", ProviderMessageID: "dum-1"})

	service := NewSmsService(db, nil, provider, testSMSConfig())

	mockDB.ExpectQuery(`SELECT COUNT\(\*\) FROM sms_messages`).
		WithArgs("org1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mockDB.ExpectExec("INSERT INTO sms_campaigns").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("INSERT INTO sms_messages").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("UPDATE sms_campaigns").
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		Phones:         []string{"+90 555 123 45 67", "+905551234567"},
		Message:        "Aidat hatirlatmasi",
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.NoError(t, mockDB.ExpectationsWereMet())
	provider.AssertNumberOfCalls(t, "SendSingle", 1)
}

func TestSmsService_SendBulk_CapacityExceeded(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cfg := testSMSConfig()
	cfg.MaxRecipients = 2

	provider := new(MockProvider)
	service := NewSmsService(db, nil, provider, cfg)

	_, err = service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		Phones:         []string{"+905551111111", "+905552222222", "+905553333333"},
		Message:        "Duyuru",
	})

	var capErr *CapacityError
	assert.ErrorAs(t, err, &capErr)
	assert.Equal(t, 3, capErr.Count)
	assert.Equal(t, 2, capErr.Max)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSmsService_SendBulk_RateLimited(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cfg := testSMSConfig()
	cfg.PerMinuteCap = 10

	provider := new(MockProvider)
	service := NewSmsService(db, nil, provider, cfg)

	// 8 already in the window, 5 more requested: 13 > 10
	mockDB.ExpectQuery(`SELECT COUNT\(\*\) FROM sms_messages`).
		WithArgs("org1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))

	_, err = service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		Phones: []string{
			"+905551111111", "+905552222222", "+905553333333",
			"+905554444444", "+905555555555",
		},
		Message: "Duyuru",
	})

	var rateErr *RateLimitError
	assert.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 10, rateErr.Cap)
	assert.Equal(t, 8, rateErr.InWindow)
	assert.Equal(t, 5, rateErr.Requested)

	// Rejected before any campaign row was created.
	assert.NoError(t, mockDB.ExpectationsWereMet())
	provider.AssertNotCalled(t, "SendSingle")
}

func TestSmsService_SendBulk_RateLimitDisabled(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cfg := testSMSConfig()
	cfg.PerMinuteCap = 0 // unlimited

	provider := new(MockProvider)
	provider.On("SendSingle", mock.Anything, "+905551111111", "Duyuru").
		Return(sms.SendResult{Success: true, Provider: "dummy"})

	service := NewSmsService(db, nil, provider, cfg)

	// No COUNT query expected with the cap disabled.
	mockDB.ExpectExec("INSERT INTO sms_campaigns").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("INSERT INTO sms_messages").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("UPDATE sms_campaigns").
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		Phones:         []string{"+905551111111"},
		Message:        "Duyuru",
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSmsService_SendBulk_DryRun(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	provider := new(MockProvider)
	service := NewSmsService(db, nil, provider, testSMSConfig())

	mockDB.ExpectQuery(`SELECT COUNT\(\*\) FROM sms_messages`).
		WithArgs("org1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mockDB.ExpectExec("INSERT INTO sms_campaigns").
		WithArgs(sqlmock.AnyArg(), "org1", sqlmock.AnyArg(), "Duyuru",
			models.ChannelSMS, models.CampaignCompleted, 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		Phones:         []string{"+905551111111", "+905552222222", "+905553333333"},
		Message:        "Duyuru",
		DryRun:         true,
	})
	assert.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.NotEmpty(t, result.CampaignID)

	// No provider calls and no per-recipient records on a dry run.
	assert.NoError(t, mockDB.ExpectationsWereMet())
	provider.AssertNotCalled(t, "SendSingle")
	provider.AssertNotCalled(t, "SendBulk")
}

func TestSmsService_SendBulk_PersonalizedRendering(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	provider := new(MockProvider)
	provider.On("SendSingle", mock.Anything, "+905551111111", "Merhaba Ayse Yilmaz, aidat borcunuz var.").
		Return(sms.SendResult{Success: true, Provider: "dummy", ProviderMessageID: "dum-1"})

	service := NewSmsService(db, nil, provider, testSMSConfig())

	mockDB.ExpectQuery("SELECT id, phone, first_name, last_name FROM members").
		WithArgs("org1", "member1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "phone", "first_name", "last_name"}).
			AddRow("member1", "+90 555 111 11 11", "Ayse", "Yilmaz"))
	mockDB.ExpectQuery(`SELECT COUNT\(\*\) FROM sms_messages`).
		WithArgs("org1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mockDB.ExpectExec("INSERT INTO sms_campaigns").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("INSERT INTO sms_messages").
		WithArgs(sqlmock.AnyArg(), "org1", sqlmock.AnyArg(), "member1", "+905551111111",
			"Merhaba Ayse Yilmaz, aidat borcunuz var.", models.ChannelSMS, models.MessageSent,
			"dummy", "dum-1", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("UPDATE sms_campaigns").
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		MemberIDs:      []string{"member1"},
		Message:        "Merhaba {{fullName}}, aidat borcunuz var.",
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.NoError(t, mockDB.ExpectationsWereMet())
	provider.AssertExpectations(t)
}

func TestSmsService_SendBulk_RetryExhaustion(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cfg := testSMSConfig()
	cfg.RetryLimit = 2

	provider := new(MockProvider)
	provider.On("SendSingle", mock.Anything, "+905551111111", "Duyuru").
		Return(sms.SendResult{Success: false, Provider: "dummy", Error: "provider unavailable"})

	service := NewSmsService(db, nil, provider, cfg)

	mockDB.ExpectQuery(`SELECT COUNT\(\*\) FROM sms_messages`).
		WithArgs("org1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mockDB.ExpectExec("INSERT INTO sms_campaigns").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("INSERT INTO sms_messages").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Every send failed, so the campaign ends FAILED.
	mockDB.ExpectExec("UPDATE sms_campaigns").
		WithArgs(models.CampaignFailed, 0, 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		Phones:         []string{"+905551111111"},
		Message:        "Duyuru",
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.NoError(t, mockDB.ExpectationsWereMet())

	// Initial attempt plus two retries.
	provider.AssertNumberOfCalls(t, "SendSingle", 3)
}

func TestSmsService_SendBulk_BulkPathWithRetry(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cfg := testSMSConfig()
	cfg.RetryLimit = 2

	provider := new(MockProvider)
	provider.On("SendBulk", mock.Anything, []string{"+905551111111", "+905552222222"}, "Duyuru").
		Return([]sms.SendResult{
			{Success: true, Provider: "dummy", ProviderMessageID: "dum-1"},
			{Success: false, Provider: "dummy", Error: "temporary failure"},
		})
	// Failed bulk entry falls back to single sends, second retry succeeds.
	provider.On("SendSingle", mock.Anything, "+905552222222", "Duyuru").
		Return(sms.SendResult{Success: false, Provider: "dummy", Error: "temporary failure"}).Once()
	provider.On("SendSingle", mock.Anything, "+905552222222", "Duyuru").
		Return(sms.SendResult{Success: true, Provider: "dummy", ProviderMessageID: "dum-2"}).Once()

	service := NewSmsService(db, nil, provider, cfg)

	mockDB.ExpectQuery(`SELECT COUNT\(\*\) FROM sms_messages`).
		WithArgs("org1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mockDB.ExpectExec("INSERT INTO sms_campaigns").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("INSERT INTO sms_messages").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("INSERT INTO sms_messages").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("UPDATE sms_campaigns").
		WithArgs(models.CampaignCompleted, 2, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	personalize := false
	result, err := service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		Phones:         []string{"+905551111111", "+905552222222"},
		Message:        "Duyuru",
		Personalize:    &personalize,
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.NoError(t, mockDB.ExpectationsWereMet())
	provider.AssertExpectations(t)
}

func TestSmsService_SendBulk_PersistenceFailurePropagates(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	provider := new(MockProvider)
	provider.On("SendSingle", mock.Anything, "+905551111111", "Duyuru").
		Return(sms.SendResult{Success: true, Provider: "dummy"})

	service := NewSmsService(db, nil, provider, testSMSConfig())

	mockDB.ExpectQuery(`SELECT COUNT\(\*\) FROM sms_messages`).
		WithArgs("org1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mockDB.ExpectExec("INSERT INTO sms_campaigns").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectExec("INSERT INTO sms_messages").
		WillReturnError(errors.New("connection reset"))

	_, err = service.SendBulk(context.Background(), BulkSendOptions{
		OrganizationID: "org1",
		Phones:         []string{"+905551111111"},
		Message:        "Duyuru",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record delivery")
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
