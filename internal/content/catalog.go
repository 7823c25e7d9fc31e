package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/opencampus/delivery-engine/internal/domain"
)

const defaultLocale = "en"

var _ Renderer = (*CatalogRenderer)(nil)

// CatalogRenderer resolves events against a fixed catalog of per-channel
// message texts. Placeholders of the form {name} are substituted from the
// event data; unknown placeholders are left in place so missing data is
// visible instead of silently dropped.
type CatalogRenderer struct {
	entries map[catalogKey]map[domain.Channel]Rendered
}

type catalogKey struct {
	Type   domain.NotificationType
	Locale string
}

func NewCatalogRenderer() *CatalogRenderer {
	r := &CatalogRenderer{
		entries: make(map[catalogKey]map[domain.Channel]Rendered),
	}
	r.registerDefaults()
	return r
}

// Register adds or replaces the catalog entry for one type, locale, and
// channel. Later registrations win, so deployments can overlay locales on
// top of the built-in English texts.
func (r *CatalogRenderer) Register(notificationType domain.NotificationType, locale string, channel domain.Channel, rendered Rendered) {
	key := catalogKey{Type: notificationType, Locale: normalizeLocale(locale)}
	if r.entries[key] == nil {
		r.entries[key] = make(map[domain.Channel]Rendered)
	}
	r.entries[key][channel] = rendered
}

func (r *CatalogRenderer) Render(ctx context.Context, notificationType domain.NotificationType, locale string, data map[string]string) (map[domain.Channel]Rendered, error) {
	entry, ok := r.entries[catalogKey{Type: notificationType, Locale: normalizeLocale(locale)}]
	if !ok {
		entry, ok = r.entries[catalogKey{Type: notificationType, Locale: defaultLocale}]
	}
	if !ok {
		return nil, fmt.Errorf("no catalog entry for notification type %s", notificationType)
	}

	out := make(map[domain.Channel]Rendered, len(entry))
	for channel, text := range entry {
		out[channel] = Rendered{
			Subject: substitute(text.Subject, data),
			Body:    substitute(text.Body, data),
		}
	}
	return out, nil
}

func (r *CatalogRenderer) registerDefaults() {
	register := func(t domain.NotificationType, subject, body, pushBody string) {
		r.Register(t, defaultLocale, domain.ChannelEmail, Rendered{Subject: subject, Body: body})
		r.Register(t, defaultLocale, domain.ChannelPush, Rendered{Subject: subject, Body: pushBody})
		r.Register(t, defaultLocale, domain.ChannelInApp, Rendered{Subject: subject, Body: body})
	}

	register(domain.TypeScheduleReminder,
		"Upcoming class: {course}",
		"Your {course} class starts at {startTime}.",
		"{course} starts at {startTime}.",
	)
	register(domain.TypeQuizReminder,
		"Quiz reminder: {quiz}",
		"The quiz {quiz} for {course} closes at {deadline}.",
		"{quiz} closes at {deadline}.",
	)
	register(domain.TypeContentUpdate,
		"New material in {course}",
		"{course} has new material: {title}.",
		"New in {course}: {title}.",
	)
	register(domain.TypeCourseAnnouncement,
		"Announcement for {course}",
		"{message}",
		"{message}",
	)
	register(domain.TypeSystem,
		"{subject}",
		"{message}",
		"{message}",
	)
}

func substitute(text string, data map[string]string) string {
	if len(data) == 0 || !strings.Contains(text, "{") {
		return text
	}

	pairs := make([]string, 0, len(data)*2)
	for key, value := range data {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func normalizeLocale(locale string) string {
	trimmed := strings.ToLower(strings.TrimSpace(locale))
	if trimmed == "" {
		return defaultLocale
	}
	return trimmed
}
