package service

import (
	"html"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/observability"
)

const toastBufferSize = 16

// ToastSeverity classifies a toast.
type ToastSeverity string

// Toast severities shown by the desk.
const (
	ToastInfo    ToastSeverity = "info"
	ToastSuccess ToastSeverity = "success"
	ToastWarning ToastSeverity = "warning"
	ToastError   ToastSeverity = "error"
)

// Toast is a short-lived operator message.
type Toast struct {
	ID        string        `json:"id"`
	Message   string        `json:"message"`
	Severity  ToastSeverity `json:"type"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Notifier is the toast collaborator consumed by the workspace, rubric and settings services.
type Notifier interface {
	Show(message string, severity ToastSeverity) Toast
}

// NotificationCenter keeps the live toast list and streams new toasts to subscribers.
type NotificationCenter interface {
	Notifier
	List() []Toast
	Dismiss(id string) bool
	Subscribe() (<-chan Toast, func())
}

type notificationCenter struct {
	mu          sync.Mutex
	toasts      []Toast
	ttl         time.Duration
	now         func() time.Time
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	subscribers map[chan Toast]struct{}
}

// NewNotificationCenter constructs a toast center whose entries expire after ttl.
func NewNotificationCenter(ttl time.Duration, logger zerolog.Logger) NotificationCenter {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &notificationCenter{
		ttl:         ttl,
		now:         time.Now,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "notification_center").Logger(),
		subscribers: make(map[chan Toast]struct{}),
	}
}

func (c *notificationCenter) Show(message string, severity ToastSeverity) Toast {
	switch severity {
	case ToastInfo, ToastSuccess, ToastWarning, ToastError:
	default:
		severity = ToastInfo
	}

	now := c.now()
	toast := Toast{
		ID:        uuid.NewString(),
		Message:   strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(message))),
		Severity:  severity,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(now)
	c.toasts = append(c.toasts, toast)
	for ch := range c.subscribers {
		select {
		case ch <- toast:
		default:
		}
	}

	c.logger.Debug().Str("severity", string(severity)).Str("message", toast.Message).Msg("toast shown")
	return toast
}

func (c *notificationCenter) List() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(c.now())
	out := make([]Toast, len(c.toasts))
	copy(out, c.toasts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (c *notificationCenter) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, toast := range c.toasts {
		if toast.ID == id {
			c.toasts = append(c.toasts[:i], c.toasts[i+1:]...)
			return true
		}
	}
	return false
}

func (c *notificationCenter) Subscribe() (<-chan Toast, func()) {
	ch := make(chan Toast, toastBufferSize)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()
	observability.StreamClients().WithLabelValues("toasts").Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, ch)
			close(ch)
			c.mu.Unlock()
			observability.StreamClients().WithLabelValues("toasts").Dec()
		})
	}
	return ch, cleanup
}

func (c *notificationCenter) pruneLocked(now time.Time) {
	kept := c.toasts[:0]
	for _, toast := range c.toasts {
		if now.Before(toast.ExpiresAt) {
			kept = append(kept, toast)
		}
	}
	c.toasts = kept
}
