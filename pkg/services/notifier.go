package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/artpro/stockpulse/pkg/models"
	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gorm.io/gorm"
)

// MailSender delivers a composed message. *sendgrid.Client satisfies it.
type MailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// DigestEntry is one watchlist line in a digest
type DigestEntry struct {
	Symbol        string
	Name          string
	Price         *float64
	PercentChange *float64
}

// Notifier sends watchlist digest emails
type Notifier struct {
	db     *gorm.DB
	sender MailSender
	from   string
	logger zerolog.Logger
	now    func() time.Time
}

// NewNotifier creates a notifier backed by SendGrid. An empty apiKey leaves
// the notifier disabled.
func NewNotifier(db *gorm.DB, apiKey, from string, logger zerolog.Logger) *Notifier {
	var sender MailSender
	if apiKey != "" {
		sender = sendgrid.NewSendClient(apiKey)
	}
	return NewNotifierWithSender(db, sender, from, logger)
}

// NewNotifierWithSender creates a notifier using sender for delivery
func NewNotifierWithSender(db *gorm.DB, sender MailSender, from string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		db:     db,
		sender: sender,
		from:   from,
		logger: logger,
		now:    time.Now,
	}
}

// Enabled reports whether a mail sender is configured
func (n *Notifier) Enabled() bool {
	return n.sender != nil
}

// DigestDue reports whether prefs call for a digest at now
func DigestDue(prefs models.Preferences, now time.Time) bool {
	if !prefs.EmailNotifications {
		return false
	}

	var every time.Duration
	switch prefs.NotificationFrequency {
	case models.FrequencyDaily, models.FrequencyRealTime:
		every = 24 * time.Hour
	case models.FrequencyWeekly:
		every = 7 * 24 * time.Hour
	default:
		return false
	}

	if prefs.LastDigestAt == nil {
		return true
	}
	return !now.Before(prefs.LastDigestAt.Add(every))
}

// SendDueDigests emails every user whose digest is due and returns how many
// were sent. A failure for one user is logged and does not stop the others.
func (n *Notifier) SendDueDigests(ctx context.Context) (int, error) {
	if !n.Enabled() {
		n.logger.Warn().Msg("SendGrid API key not configured, skipping digests")
		return 0, nil
	}

	var prefs []models.Preferences
	if err := n.db.WithContext(ctx).
		Where("email_notifications = ? AND notification_frequency <> ?", true, models.FrequencyNever).
		Find(&prefs).Error; err != nil {
		return 0, fmt.Errorf("failed to load preferences: %w", err)
	}

	now := n.now()
	sent := 0
	for i := range prefs {
		if !DigestDue(prefs[i], now) {
			continue
		}
		ok, err := n.SendDigest(ctx, &prefs[i])
		if err != nil {
			n.logger.Warn().Err(err).Uint("user_id", prefs[i].UserID).Msg("Failed to send digest")
			continue
		}
		if ok {
			sent++
		}
	}

	if sent > 0 {
		n.logger.Info().Int("count", sent).Msg("Digests sent")
	}
	return sent, nil
}

// SendDigest sends one user's digest and stamps LastDigestAt. It reports
// false without error when the user's watchlist is empty.
func (n *Notifier) SendDigest(ctx context.Context, prefs *models.Preferences) (bool, error) {
	if !n.Enabled() {
		return false, nil
	}

	var user models.User
	if err := n.db.WithContext(ctx).First(&user, prefs.UserID).Error; err != nil {
		return false, fmt.Errorf("failed to load user %d: %w", prefs.UserID, err)
	}

	entries, err := n.digestEntries(ctx, user.ID)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}

	subject, plain, htmlBody := BuildDigest(user, entries, n.now())

	from := mail.NewEmail("StockPulse", n.from)
	to := mail.NewEmail(displayName(user), user.Email)
	message := mail.NewSingleEmail(from, subject, to, plain, htmlBody)

	response, err := n.sender.Send(message)
	if err != nil {
		return false, fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 300 {
		return false, fmt.Errorf("email service returned status %d", response.StatusCode)
	}

	sentAt := n.now()
	if err := n.db.WithContext(ctx).Model(prefs).Update("last_digest_at", sentAt).Error; err != nil {
		return true, fmt.Errorf("failed to record digest time: %w", err)
	}
	prefs.LastDigestAt = &sentAt

	n.logger.Info().Uint("user_id", user.ID).Int("symbols", len(entries)).Msg("Digest email sent")
	return true, nil
}

func (n *Notifier) digestEntries(ctx context.Context, userID uint) ([]DigestEntry, error) {
	var items []models.WatchlistItem
	if err := n.db.WithContext(ctx).Where("user_id = ?", userID).Order("symbol").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	symbols := make([]string, len(items))
	for i, item := range items {
		symbols[i] = item.Symbol
	}
	var stocks []models.Stock
	if err := n.db.WithContext(ctx).Where("symbol IN ?", symbols).Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("failed to load stocks: %w", err)
	}
	bySymbol := make(map[string]models.Stock, len(stocks))
	for _, stock := range stocks {
		bySymbol[stock.Symbol] = stock
	}

	entries := make([]DigestEntry, 0, len(items))
	for _, item := range items {
		entry := DigestEntry{Symbol: item.Symbol, Name: item.Symbol}
		if stock, ok := bySymbol[item.Symbol]; ok {
			entry.Name = stock.Name
			entry.Price = stock.Price
			entry.PercentChange = stock.PercentChange
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BuildDigest renders the subject and bodies of a digest email
func BuildDigest(user models.User, entries []DigestEntry, at time.Time) (subject, plain, htmlBody string) {
	subject = fmt.Sprintf("Your StockPulse watchlist: %d symbols", len(entries))

	var text strings.Builder
	var rows strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\nYour watchlist as of %s:\n\n", displayName(user), at.Format("2006-01-02 15:04"))
	for _, e := range entries {
		price, change := formatEntry(e)
		fmt.Fprintf(&text, "%s (%s): %s %s\n", e.Symbol, e.Name, price, change)
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			html.EscapeString(e.Symbol), html.EscapeString(e.Name), price, change)
	}

	htmlBody = fmt.Sprintf(`
		<html>
		<body>
			<h2>Your StockPulse watchlist</h2>
			<p>As of %s</p>
			<table>
				<tr><th>Symbol</th><th>Name</th><th>Price</th><th>Change</th></tr>
				%s
			</table>
		</body>
		</html>
	`, at.Format("2006-01-02 15:04"), rows.String())

	return subject, text.String(), htmlBody
}

func formatEntry(e DigestEntry) (price, change string) {
	price, change = "n/a", ""
	if e.Price != nil {
		price = fmt.Sprintf("%.2f", *e.Price)
	}
	if e.PercentChange != nil {
		change = fmt.Sprintf("(%+.2f%%)", *e.PercentChange)
	}
	return price, change
}

func displayName(user models.User) string {
	if user.Name != nil && *user.Name != "" {
		return *user.Name
	}
	return user.Email
}
