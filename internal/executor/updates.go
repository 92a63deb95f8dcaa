package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/logging"
)

// ErrUpdatesUnavailable is returned when every mirror failed.
var ErrUpdatesUnavailable = errors.New("Failed to fetch updates from all mirrors.") //nolint:staticcheck // operator-facing text

// maxPatternTableSize bounds a mirror download.
const maxPatternTableSize = 8 << 20

// UpdateChecker fetches the pattern table from the first mirror that answers.
// Concurrent checks share one fetch.
type UpdateChecker struct {
	client  *http.Client
	mirrors []string
	group   singleflight.Group
	logger  *logging.Logger
}

func NewUpdateChecker(mirrors []string, timeout time.Duration, logger *logging.Logger) *UpdateChecker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &UpdateChecker{
		client:  &http.Client{Timeout: timeout},
		mirrors: append([]string(nil), mirrors...),
		logger:  logger,
	}
}

// Check reports the first mirror that served the table. The shared fetch is
// detached from any one caller: each mirror is bounded by the checker's own
// timeout, and a caller whose ctx ends stops waiting without failing the others.
func (u *UpdateChecker) Check(ctx context.Context) (string, error) {
	flight := context.WithoutCancel(ctx)
	ch := u.group.DoChan("check", func() (any, error) {
		return u.fetch(flight)
	})

	select {
	case res := <-ch:
		if res.Shared {
			u.logger.Debugf("update check shared with a concurrent request")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (u *UpdateChecker) fetch(ctx context.Context) (string, error) {
	for _, url := range u.mirrors {
		n, err := u.get(ctx, url)
		if err != nil {
			u.logger.Warnf("update mirror %s: %v", url, err)
			continue
		}
		return fmt.Sprintf("Fetched correctly from %s: %d bytes", url, n), nil
	}
	return "", ErrUpdatesUnavailable
}

func (u *UpdateChecker) get(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPatternTableSize))
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}
	return len(body), nil
}
