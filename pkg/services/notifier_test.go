package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpro/stockpulse/pkg/models"
	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingSender struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (s *recordingSender) Send(email *mail.SGMailV3) (*rest.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, email)
	status := s.status
	if status == 0 {
		status = 202
	}
	return &rest.Response{StatusCode: status}, nil
}

func seedDigestUser(t *testing.T, db *gorm.DB, email string, prefs models.Preferences, symbols ...string) models.Preferences {
	t.Helper()
	user := models.User{ExternalID: "ext_" + email, Email: email}
	require.NoError(t, db.Create(&user).Error)
	prefs.UserID = user.ID
	require.NoError(t, db.Create(&prefs).Error)
	for _, symbol := range symbols {
		require.NoError(t, db.Create(&models.WatchlistItem{UserID: user.ID, Symbol: symbol}).Error)
	}
	return prefs
}

func TestDigestDue(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	hoursAgo := func(h int) *time.Time {
		ts := now.Add(-time.Duration(h) * time.Hour)
		return &ts
	}

	tests := []struct {
		name  string
		prefs models.Preferences
		want  bool
	}{
		{"never sent", models.Preferences{EmailNotifications: true, NotificationFrequency: models.FrequencyDaily}, true},
		{"daily recent", models.Preferences{EmailNotifications: true, NotificationFrequency: models.FrequencyDaily, LastDigestAt: hoursAgo(3)}, false},
		{"daily elapsed", models.Preferences{EmailNotifications: true, NotificationFrequency: models.FrequencyDaily, LastDigestAt: hoursAgo(24)}, true},
		{"real time as daily", models.Preferences{EmailNotifications: true, NotificationFrequency: models.FrequencyRealTime, LastDigestAt: hoursAgo(25)}, true},
		{"weekly recent", models.Preferences{EmailNotifications: true, NotificationFrequency: models.FrequencyWeekly, LastDigestAt: hoursAgo(48)}, false},
		{"weekly elapsed", models.Preferences{EmailNotifications: true, NotificationFrequency: models.FrequencyWeekly, LastDigestAt: hoursAgo(24 * 7)}, true},
		{"never frequency", models.Preferences{EmailNotifications: true, NotificationFrequency: models.FrequencyNever}, false},
		{"emails off", models.Preferences{EmailNotifications: false, NotificationFrequency: models.FrequencyDaily}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DigestDue(tt.prefs, now))
		})
	}
}

func TestSendDueDigests(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.Stock{Symbol: "FPT", Name: "FPT Corporation", Price: ptr(75.2), PercentChange: ptr(0.94)}).Error)

	due := seedDigestUser(t, db, "due@x.com", models.DefaultPreferences(0), "FPT", "VNM")

	muted := models.DefaultPreferences(0)
	muted.EmailNotifications = false
	seedDigestUser(t, db, "muted@x.com", muted, "FPT")

	seedDigestUser(t, db, "empty@x.com", models.DefaultPreferences(0))

	sender := &recordingSender{}
	n := NewNotifierWithSender(db, sender, "digest@stockpulse.app", zerolog.Nop())
	n.now = func() time.Time { return now }

	sent, err := n.SendDueDigests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Your StockPulse watchlist: 2 symbols", sender.sent[0].Subject)

	var stored models.Preferences
	require.NoError(t, db.First(&stored, due.ID).Error)
	require.NotNil(t, stored.LastDigestAt)
	assert.True(t, stored.LastDigestAt.Equal(now))

	// Not due again within the day
	sent, err = n.SendDueDigests(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, sender.sent, 1)
}

func TestSendDigest_FailureDoesNotStamp(t *testing.T) {
	db := newTestDB(t)
	prefs := seedDigestUser(t, db, "a@x.com", models.DefaultPreferences(0), "FPT")

	n := NewNotifierWithSender(db, &recordingSender{status: 500}, "digest@stockpulse.app", zerolog.Nop())
	ok, err := n.SendDigest(context.Background(), &prefs)
	assert.False(t, ok)
	assert.Error(t, err)

	n = NewNotifierWithSender(db, &recordingSender{err: errors.New("timeout")}, "digest@stockpulse.app", zerolog.Nop())
	_, err = n.SendDigest(context.Background(), &prefs)
	assert.Error(t, err)

	var stored models.Preferences
	require.NoError(t, db.First(&stored, prefs.ID).Error)
	assert.Nil(t, stored.LastDigestAt)
}

func TestNotifier_DisabledWithoutKey(t *testing.T) {
	n := NewNotifier(newTestDB(t), "", "digest@stockpulse.app", zerolog.Nop())
	assert.False(t, n.Enabled())

	sent, err := n.SendDueDigests(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestBuildDigest(t *testing.T) {
	name := "An"
	user := models.User{Email: "a@x.com", Name: &name}
	entries := []DigestEntry{
		{Symbol: "FPT", Name: "FPT Corporation", Price: ptr(75.2), PercentChange: ptr(0.94)},
		{Symbol: "VNM", Name: "VNM"},
	}

	subject, plain, htmlBody := BuildDigest(user, entries, time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "Your StockPulse watchlist: 2 symbols", subject)
	assert.Contains(t, plain, "Hello An,")
	assert.Contains(t, plain, "FPT (FPT Corporation): 75.20 (+0.94%)")
	assert.Contains(t, plain, "VNM (VNM): n/a")
	assert.Contains(t, htmlBody, "<td>FPT Corporation</td>")
}
