// Package push notifies the downstream federation engine that new metadata
// is available. Notifications are single-attempt and fire-and-forget: the
// consumer pulls the actual payload itself, so a lost notification only
// delays convergence until the next write.
package push

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openfed/manage/pkg/observability"
)

// Notifier signals the downstream consumer. Implementations must not block
// the calling request and must not retry.
type Notifier interface {
	Notify()
}

// HTTPNotifier POSTs to the consumer's push endpoint in the background.
type HTTPNotifier struct {
	endpoint string
	username string
	password string
	client   *http.Client
	log      *logrus.Logger
	metrics  *observability.Metrics
}

// NewHTTPNotifier creates a notifier for the given push endpoint.
func NewHTTPNotifier(endpoint, username, password string, log *logrus.Logger, metrics *observability.Metrics) *HTTPNotifier {
	return &HTTPNotifier{
		endpoint: endpoint,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log,
		metrics:  metrics,
	}
}

func (n *HTTPNotifier) Notify() {
	go n.notify()
}

func (n *HTTPNotifier) notify() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, nil)
	if err != nil {
		n.fail(err)
		return
	}
	if n.username != "" {
		req.SetBasicAuth(n.username, n.password)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		n.fail(err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.WithField("status", resp.StatusCode).Warn("downstream push rejected")
		n.metrics.PushNotificationErrors.Inc()
		return
	}
	n.metrics.PushNotificationsTotal.Inc()
	n.log.Debug("downstream push notified")
}

func (n *HTTPNotifier) fail(err error) {
	n.metrics.PushNotificationErrors.Inc()
	n.log.WithError(err).Warn("downstream push failed")
}

// NoopNotifier is used when no push endpoint is configured and in tests.
type NoopNotifier struct{}

func (NoopNotifier) Notify() {}
