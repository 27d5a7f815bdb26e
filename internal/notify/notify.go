package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"bananagen/internal/logger"
)

const userAgent = "bananagen/0.1.0"

// Service is the operator-alerting surface. Errors always go out at the
// highest ntfy priority; warnings are sent too for visibility.
type Service interface {
	NotifyWarning(ctx context.Context, title, message string) error
	NotifyError(ctx context.Context, title, message string) error
	NotifyRunCompleted(ctx context.Context, runID string, succeeded, failed int) error
	TestNotification(ctx context.Context) error
}

// Options configures the ntfy backend. An empty Endpoint yields a noop
// service so callers never branch on configuration.
type Options struct {
	Endpoint string
	Username string
	Password string
	Timeout  time.Duration
}

func NewService(opts Options) Service {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return noopService{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ntfyService{
		endpoint: endpoint,
		username: opts.Username,
		password: opts.Password,
		client:   &http.Client{Timeout: timeout},
		log:      logger.New("Notify"),
	}
}

type ntfyService struct {
	endpoint string
	username string
	password string
	client   *http.Client
	log      *logger.Logger
}

func (n *ntfyService) NotifyWarning(ctx context.Context, title, message string) error {
	return n.send(ctx, title, message, "4", []string{"warning"})
}

func (n *ntfyService) NotifyError(ctx context.Context, title, message string) error {
	// Errors are always highest priority.
	return n.send(ctx, title, message, "5", []string{"rotating_light"})
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, runID string, succeeded, failed int) error {
	msg := fmt.Sprintf("Run %s finished: %d succeeded, %d failed", runID, succeeded, failed)
	priority := "3"
	tags := []string{"white_check_mark"}
	if failed > 0 {
		priority = "5"
		tags = []string{"rotating_light"}
	}
	return n.send(ctx, "Bananagen - Run Complete", msg, priority, tags)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, "Bananagen - Test", "Notification delivery is working", "3", []string{"bell"})
}

func (n *ntfyService) send(ctx context.Context, title, message, priority string, tags []string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Title", SanitizeHeaderValue(title))
	req.Header.Set("Priority", priority)
	if len(tags) > 0 {
		req.Header.Set("Tags", SanitizeHeaderValue(strings.Join(tags, ",")))
	}
	if n.username != "" && n.password != "" {
		req.SetBasicAuth(n.username, n.password)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to ntfy: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		n.log.LogWarnf("ntfy responded with status %d: %s", resp.StatusCode, string(body))
		return fmt.Errorf("ntfy status %d", resp.StatusCode)
	}
	n.log.LogDebugf("ntfy sent: %s", title)
	return nil
}

// SanitizeHeaderValue makes a string safe for an HTTP/1.1 header: common
// Unicode punctuation is replaced with ASCII equivalents and everything
// else non-ASCII is dropped. The message body stays UTF-8; only headers
// need this.
func SanitizeHeaderValue(s string) string {
	replacer := strings.NewReplacer(
		"—", "-", // em dash
		"–", "-", // en dash
		"−", "-", // minus
		" ", " ", // non-breaking space
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
	)
	s = replacer.Replace(s)
	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII && r != '\r' && r != '\n' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

type noopService struct{}

func (noopService) NotifyWarning(context.Context, string, string) error { return nil }
func (noopService) NotifyError(context.Context, string, string) error   { return nil }
func (noopService) NotifyRunCompleted(context.Context, string, int, int) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
