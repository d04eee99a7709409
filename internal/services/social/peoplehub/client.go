// Package peoplehub is the HTTP batch fetch client for people documents.
package peoplehub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/socialsync/internal/platform/errors"
	platformotel "github.com/louisbranch/socialsync/internal/platform/otel"
	"github.com/louisbranch/socialsync/internal/platform/timeouts"
	"github.com/louisbranch/socialsync/internal/services/social/domain"
	"github.com/louisbranch/socialsync/internal/services/social/graph"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxUsersPerRequest caps the ids of one batch request.
	MaxUsersPerRequest = 100
	contractVersion    = "5"
	maxConcurrent      = 4
	maxErrorBody       = 1 << 10
)

var tracer = platformotel.Tracer("github.com/louisbranch/socialsync/internal/services/social/peoplehub")

// TokenSource returns the bearer token for a request.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Config configures a Client.
type Config struct {
	BaseURL  string
	Token    TokenSource
	Language string
	// HTTPClient defaults to a client with the fetch request timeout.
	HTTPClient *http.Client
}

// Client fetches people documents. It implements graph.Fetcher.
type Client struct {
	baseURL  string
	token    TokenSource
	language string
	client   *http.Client
}

var _ graph.Fetcher = (*Client)(nil)

// NewClient builds a client for the people service at cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("peoplehub base url is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeouts.FetchRequest}
	}
	token := cfg.Token
	if token == nil {
		token = StaticToken("")
	}
	return &Client{
		baseURL:  baseURL,
		token:    token,
		language: cfg.Language,
		client:   client,
	}, nil
}

// FetchUsers implements graph.Fetcher. Explicit id lists are split into
// requests of MaxUsersPerRequest issued concurrently; results keep request
// order.
func (c *Client) FetchUsers(ctx context.Context, req graph.FetchRequest) ([]domain.User, error) {
	decorations := decorationPath(req)
	if req.All {
		users, err := c.do(ctx, http.MethodGet, c.peopleURL(req.CallerID, "social", decorations), nil)
		if err != nil {
			return nil, err
		}
		return stampTitle(users, req), nil
	}
	if len(req.UserIDs) == 0 {
		return nil, nil
	}

	chunks := domain.ChunkIDs(req.UserIDs, MaxUsersPerRequest)
	results := make([][]domain.User, len(chunks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrent)
	for i, chunk := range chunks {
		group.Go(func() error {
			body, err := json.Marshal(batchRequest{XUIDs: chunk})
			if err != nil {
				return fmt.Errorf("encode batch request: %w", err)
			}
			users, err := c.do(groupCtx, http.MethodPost, c.peopleURL(req.CallerID, "batch", decorations), body)
			if err != nil {
				return err
			}
			results[i] = users
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var users []domain.User
	for _, chunk := range results {
		users = append(users, chunk...)
	}
	return stampTitle(users, req), nil
}

// stampTitle records which title the title history decoration was for.
func stampTitle(users []domain.User, req graph.FetchRequest) []domain.User {
	if req.PresenceOnly || !req.Detail.Has(domain.DetailTitleHistory) {
		return users
	}
	for i := range users {
		users[i].TitleHistory.TitleID = req.TitleID
	}
	return users
}

func (c *Client) peopleURL(callerID, relationship, decorations string) string {
	return fmt.Sprintf("%s/users/xuid(%s)/people/%s/decoration/%s", c.baseURL, callerID, relationship, decorations)
}

// decorationPath always asks for presence detail and adds the decorations
// the detail level requests. Presence polls ask for presence only.
func decorationPath(req graph.FetchRequest) string {
	parts := []string{"presenceDetail"}
	if req.PresenceOnly {
		return parts[0]
	}
	if req.Detail.Has(domain.DetailTitleHistory) {
		parts = append(parts, fmt.Sprintf("titlehistory(%d)", req.TitleID))
	}
	if req.Detail.Has(domain.DetailPreferredColor) {
		parts = append(parts, "preferredcolor")
	}
	return strings.Join(parts, ",")
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]domain.User, error) {
	ctx, span := tracer.Start(ctx, "peoplehub "+method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", method), attribute.String("url.full", url)))
	defer span.End()

	users, status, err := c.roundTrip(ctx, method, url, body)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return users, nil
}

func (c *Client) roundTrip(ctx context.Context, method, url string, body []byte) ([]domain.User, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build people request: %w", err)
	}
	token, err := c.token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("people request token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("x-xbl-contract-version", contractVersion)
	req.Header.Set("Accept", "application/json")
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, apperrors.Wrap(apperrors.CodeFetchFailed, "people request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp.StatusCode, apperrors.WithMetadata(apperrors.CodeFetchFailed,
			fmt.Sprintf("people request returned %s", resp.Status),
			map[string]string{"status": strconv.Itoa(resp.StatusCode), "body": strings.TrimSpace(string(detail))})
	}
	if dependency := resp.Header.Get("x-xbl-servicedefault"); dependency != "" {
		return nil, resp.StatusCode, apperrors.WithMetadata(apperrors.CodeFetchFailed,
			"people dependency failed to load",
			map[string]string{"status": strconv.Itoa(http.StatusFailedDependency), "dependency": dependency})
	}

	var payload peopleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp.StatusCode, apperrors.WrapWithMetadata(apperrors.CodeFetchFailed, "decode people response",
			map[string]string{"status": strconv.Itoa(resp.StatusCode)}, err)
	}
	users := make([]domain.User, 0, len(payload.People))
	for _, person := range payload.People {
		user, err := person.toUser()
		if err != nil {
			return nil, resp.StatusCode, apperrors.WrapWithMetadata(apperrors.CodeFetchFailed, "decode person",
				map[string]string{"status": strconv.Itoa(resp.StatusCode)}, err)
		}
		users = append(users, user)
	}
	return users, resp.StatusCode, nil
}
