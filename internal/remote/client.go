package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/Archetype/internal/models"
)

// ErrUnavailable marks a transient delivery failure: timeouts, refused
// connections, server-side 5xx. The caller falls back to the offline path
// and the sync queue retries later.
var ErrUnavailable = errors.New("remote unavailable")

// ErrNotFound is returned for a 404 on read paths.
var ErrNotFound = errors.New("remote record not found")

// IsTransient reports whether an error should be retried via the queue.
func IsTransient(err error) bool { return errors.Is(err, ErrUnavailable) }

// Client talks to the assessment system of record. Request and response
// bodies are the entity shapes in models.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	tokens  *TokenProvider
}

// New builds a client. timeout bounds every individual call; a timed-out
// call is treated identically to a network failure.
func New(baseURL string, timeout time.Duration, tokens *TokenProvider, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		tokens:  tokens,
	}
}

// Ping is the connectivity probe used by the network monitor.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// --- respondents ---

func (c *Client) CreateRespondent(ctx context.Context, r *models.Respondent) (*models.Respondent, error) {
	var out models.Respondent
	if err := c.do(ctx, http.MethodPost, "/respondents", r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRespondent(ctx context.Context, id string) (*models.Respondent, error) {
	var out models.Respondent
	if err := c.do(ctx, http.MethodGet, "/respondents/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRespondent(ctx context.Context, r *models.Respondent) (*models.Respondent, error) {
	var out models.Respondent
	if err := c.do(ctx, http.MethodPut, "/respondents/"+url.PathEscape(r.ID), r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- sessions ---

func (c *Client) CreateSession(ctx context.Context, s *models.TestSession) (*models.TestSession, error) {
	var out models.TestSession
	if err := c.do(ctx, http.MethodPost, "/sessions", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.TestSession, error) {
	var out models.TestSession
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSession(ctx context.Context, s *models.TestSession) (*models.TestSession, error) {
	var out models.TestSession
	if err := c.do(ctx, http.MethodPut, "/sessions/"+url.PathEscape(s.ID), s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SessionsByRespondent(ctx context.Context, respondentID string) ([]models.TestSession, error) {
	var out []models.TestSession
	if err := c.do(ctx, http.MethodGet, "/respondents/"+url.PathEscape(respondentID)+"/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- answers ---

// SaveAnswer posts one answer; the server upserts on
// (session, question index), so replaying the same slot is safe.
func (c *Client) SaveAnswer(ctx context.Context, a *models.AnswerRecord) (*models.AnswerRecord, error) {
	var out models.AnswerRecord
	if err := c.do(ctx, http.MethodPost, "/answers", a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SessionAnswers(ctx context.Context, sessionID string) ([]models.AnswerRecord, error) {
	var out []models.AnswerRecord
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/answers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteAnswer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/answers/"+url.PathEscape(id), nil, nil)
}

// --- orders ---

func (c *Client) CreateOrder(ctx context.Context, o *models.PaymentOrder) (*models.PaymentOrder, error) {
	var out models.PaymentOrder
	if err := c.do(ctx, http.MethodPost, "/orders", o, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (*models.PaymentOrder, error) {
	var out models.PaymentOrder
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateOrder(ctx context.Context, o *models.PaymentOrder) (*models.PaymentOrder, error) {
	var out models.PaymentOrder
	if err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(o.ID), o, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- behavior logs ---

func (c *Client) CreateLog(ctx context.Context, l *models.BehaviorLog) (*models.BehaviorLog, error) {
	var out models.BehaviorLog
	if err := c.do(ctx, http.MethodPost, "/behavior-logs", l, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LogsByRespondent(ctx context.Context, respondentID string, limit int) ([]models.BehaviorLog, error) {
	path := "/respondents/" + url.PathEscape(respondentID) + "/behavior-logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []models.BehaviorLog
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- shares ---

func (c *Client) CreateShare(ctx context.Context, s *models.ShareRecord) (*models.ShareRecord, error) {
	var out models.ShareRecord
	if err := c.do(ctx, http.MethodPost, "/shares", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetShare(ctx context.Context, id string) (*models.ShareRecord, error) {
	var out models.ShareRecord
	if err := c.do(ctx, http.MethodGet, "/shares/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateShare(ctx context.Context, s *models.ShareRecord) (*models.ShareRecord, error) {
	var out models.ShareRecord
	if err := c.do(ctx, http.MethodPut, "/shares/"+url.PathEscape(s.ID), s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Beacon fires a non-blocking, best-effort POST with no awaited result and
// no retry. Used on termination, when a full round trip can no longer
// complete.
func (c *Client) Beacon(path string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
}

// do runs one JSON round trip. A 409 is adopted as success: the server
// already holds the entity and replies with its copy, which we decode into
// out instead of erroring.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token, err := c.tokens.Token(ctx); err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isNetworkErr(err) {
			return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusConflict:
		c.logger.Debug("duplicate adopted as success", zap.String("path", path))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// isNetworkErr treats timeouts and connection-level failures as transient.
func isNetworkErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
