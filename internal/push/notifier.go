package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

const (
	checkInterval = time.Hour
	expiryLead    = 2
	sentRetention = 30 * 24 * time.Hour
)

// Mailer sends the join-request email to an admin who set an address.
type Mailer interface {
	SendJoinRequest(ctx context.Context, toEmail, requester, householdName string, householdID int64) error
}

// Notifier sends join-request alerts to household admins and a daily
// expiring-items digest to approved members. Either channel may be nil.
type Notifier struct {
	sender     Sender
	mailer     Mailer
	subs       *store.PushStore
	households *store.HouseholdStore
	users      *store.UserStore
	groceries  *store.GroceryStore
	observe    func(notifType, outcome string)
	now        func() time.Time
	logger     *slog.Logger
}

func NewNotifier(sender Sender, subs *store.PushStore, households *store.HouseholdStore, users *store.UserStore, groceries *store.GroceryStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:     sender,
		subs:       subs,
		households: households,
		users:      users,
		groceries:  groceries,
		observe:    func(string, string) {},
		now:        time.Now,
		logger:     logger,
	}
}

// SetMailer enables join-request emails.
func (n *Notifier) SetMailer(m Mailer) {
	n.mailer = m
}

// OnDelivery registers fn to be told the outcome of every send.
func (n *Notifier) OnDelivery(fn func(notifType, outcome string)) {
	n.observe = fn
}

// Run checks for expiring items every hour until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := n.CheckExpiring(ctx); err != nil {
				n.logger.Error("expiring items check failed", "error", err)
			}
			if _, err := n.subs.CleanupSent(ctx, n.now().Add(-sentRetention)); err != nil {
				n.logger.Error("cleanup sent notifications failed", "error", err)
			}
		}
	}
}

// JoinRequested tells the household admin that userID asked to join.
func (n *Notifier) JoinRequested(ctx context.Context, householdID, userID int64) {
	h, err := n.households.GetByID(ctx, householdID)
	if err != nil || h == nil {
		n.logger.Warn("join notification: household lookup failed", "household_id", householdID, "error", err)
		return
	}
	u, err := n.users.GetByID(ctx, userID)
	if err != nil || u == nil {
		n.logger.Warn("join notification: user lookup failed", "user_id", userID, "error", err)
		return
	}

	if n.mailer != nil {
		n.emailAdmin(ctx, h, u)
	}
	if n.sender == nil {
		return
	}

	subs, err := n.subs.ListByUser(ctx, h.AdminID)
	if err != nil {
		n.logger.Error("join notification: list subscriptions", "error", err)
		return
	}

	n.deliver(ctx, model.NotifTypeJoinRequest, subs, Payload{
		Title: "Join request",
		Body:  fmt.Sprintf("%s wants to join %s", u.Username, h.Name),
		URL:   fmt.Sprintf("/households/%d/requests", h.ID),
		Tag:   fmt.Sprintf("join-%d-%d", h.ID, u.ID),
	})
}

func (n *Notifier) emailAdmin(ctx context.Context, h *model.Household, requester *model.User) {
	admin, err := n.users.GetByID(ctx, h.AdminID)
	if err != nil || admin == nil || admin.Email == "" {
		return
	}
	if err := n.mailer.SendJoinRequest(ctx, admin.Email, requester.Username, h.Name, h.ID); err != nil {
		n.observe(model.NotifTypeJoinRequest, "email_error")
		n.logger.Warn("join request email failed", "household_id", h.ID, "error", err)
		return
	}
	n.observe(model.NotifTypeJoinRequest, "emailed")
}

// CheckExpiring sends each subscribed household at most one digest per day
// listing items that expire within the next two days. It returns how many
// households were notified.
func (n *Notifier) CheckExpiring(ctx context.Context) (int, error) {
	if n.sender == nil {
		return 0, nil
	}
	today := model.DateOf(n.now().UTC())
	ids, err := n.subs.ListHouseholdIDs(ctx)
	if err != nil {
		return 0, err
	}

	notified := 0
	for _, hid := range ids {
		items, err := n.groceries.ExpiringBetween(ctx, hid, today, today.AddDays(expiryLead))
		if err != nil {
			return notified, err
		}
		if len(items) == 0 {
			continue
		}

		// Record first: a crash mid-send skips a digest rather than repeating one.
		fresh, err := n.subs.RecordSent(ctx, hid, model.NotifTypeExpiring, today.String())
		if err != nil {
			return notified, err
		}
		if !fresh {
			continue
		}

		subs, err := n.subs.ListForHousehold(ctx, hid)
		if err != nil {
			return notified, err
		}
		n.deliver(ctx, model.NotifTypeExpiring, subs, Payload{
			Title: "Expiring soon",
			Body:  expiringBody(items, today),
			URL:   fmt.Sprintf("/households/%d/dashboard", hid),
			Tag:   fmt.Sprintf("expiring-%d", hid),
		})
		notified++
	}
	return notified, nil
}

func expiringBody(items []model.ExpiringItem, today model.Date) string {
	if len(items) == 1 {
		return fmt.Sprintf("%s expires %s", items[0].Name, relativeDay(items[0].ExpiryDate, today))
	}
	names := make([]string, 0, 3)
	for i, it := range items {
		if i == 3 {
			break
		}
		names = append(names, it.Name)
	}
	body := fmt.Sprintf("%d items expire soon: %s", len(items), strings.Join(names, ", "))
	if extra := len(items) - len(names); extra > 0 {
		body += fmt.Sprintf(" and %d more", extra)
	}
	return body
}

func relativeDay(d, today model.Date) string {
	switch {
	case d.Equal(today):
		return "today"
	case d.Equal(today.AddDays(1)):
		return "tomorrow"
	}
	return "on " + d.String()
}

func (n *Notifier) deliver(ctx context.Context, notifType string, subs []model.PushSubscription, payload Payload) {
	for i := range subs {
		sub := &subs[i]
		err := n.sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
			n.observe(notifType, "sent")
		case errors.Is(err, ErrExpired):
			n.observe(notifType, "expired")
			if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				n.logger.Error("remove expired subscription", "error", err)
			}
		default:
			n.observe(notifType, "error")
			n.logger.Warn("push send failed", "type", notifType, "user_id", sub.UserID, "error", err)
		}
	}
}
