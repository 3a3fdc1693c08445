package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// Run tails the vault event bus and forwards each event through the notifier's
// filter. It blocks until the context is cancelled or the subscription closes.
func (n *Notifier) Run(ctx context.Context, source domain.EventSource) error {
	events, err := source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	n.logger.InfoContext(ctx, "notifier consuming vault events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			// Delivery failures are already logged per sender.
			_ = n.Notify(ctx, ev)
		}
	}
}

// formatEvent renders a vault event as a notification title and body.
func formatEvent(ev domain.Event) (string, string) {
	var title string
	switch ev.Type {
	case domain.EventSeriesCreated:
		title = fmt.Sprintf("Series %v created", ev.Payload["series_id"])
	case domain.EventSeriesActivated:
		title = fmt.Sprintf("Series %v open for subscriptions", ev.Payload["series_id"])
	case domain.EventSeriesMatured:
		title = fmt.Sprintf("Series %v matured", ev.Payload["series_id"])
	case domain.EventSeriesClosed:
		title = fmt.Sprintf("Series %v closed", ev.Payload["series_id"])
	case domain.EventSubscribed:
		title = fmt.Sprintf("Subscription in series %v", ev.Payload["series_id"])
	case domain.EventRedeemed:
		title = fmt.Sprintf("Redemption in series %v", ev.Payload["series_id"])
	case domain.EventRepoOpened:
		title = fmt.Sprintf("Repo %v opened", ev.Payload["position_id"])
	case domain.EventRepoClosed:
		title = fmt.Sprintf("Repo %v repaid", ev.Payload["position_id"])
	case domain.EventRepoDefaulted:
		title = fmt.Sprintf("Repo %v defaulted", ev.Payload["position_id"])
	default:
		title = "Vault event: " + ev.Type
	}

	var b strings.Builder
	fmt.Fprintf(&b, "at %s", ev.At.UTC().Format("2006-01-02 15:04:05 MST"))
	for _, k := range sortedKeys(ev.Payload) {
		fmt.Fprintf(&b, "\n%s: %v", k, ev.Payload[k])
	}
	return title, b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Senders builds the sender list from configured channels. Unconfigured
// channels are skipped.
func Senders(telegramToken, telegramChatID, discordWebhook string, logger *slog.Logger) []Sender {
	var senders []Sender
	if telegramToken != "" && telegramChatID != "" {
		senders = append(senders, NewTelegramSender(telegramToken, telegramChatID))
	}
	if discordWebhook != "" {
		senders = append(senders, NewDiscordSender(discordWebhook))
	}
	if len(senders) == 0 {
		logger.Info("notify: no senders configured, notifications disabled")
	}
	return senders
}
