package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout = 15 * time.Second

	loginPath   = "/login"
	refreshPath = "/token/refresh"
	smsPath     = "/sms"
)

// Client talks to the SMS gateway over its JSON API.
type Client struct {
	client   *resty.Client
	baseURL  string
	username string
	password string
}

func NewClient(baseURL, username, password string, timeout time.Duration) (*Client, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewClientWithResty(baseURL, username, password, client)
}

func NewClientWithResty(baseURL, username, password string, client *resty.Client) (*Client, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)

	return &Client{
		client:   client,
		baseURL:  trimmedURL,
		username: strings.TrimSpace(username),
		password: password,
	}, nil
}

// Login exchanges the configured username and password for a bearer token.
func (c *Client) Login(ctx context.Context) (*Token, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("gateway client is not initialized")
	}
	return c.requestToken(ctx, "login", loginPath, loginRequest{
		Username: c.username,
		Password: c.password,
	})
}

// Refresh exchanges a renewal token for a fresh bearer token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("gateway client is not initialized")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, &Error{Op: "refresh", Kind: KindAuth, Message: "refresh token is empty"}
	}
	return c.requestToken(ctx, "refresh", refreshPath, refreshRequest{RefreshToken: refreshToken})
}

// Send submits one message to all phone numbers using the given bearer token.
func (c *Client) Send(ctx context.Context, token string, req SendRequest) (*SendResponse, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("gateway client is not initialized")
	}
	if len(req.PhoneNumbers) == 0 {
		return nil, fmt.Errorf("at least one phone number is required")
	}

	numbers := make([]msisdn, 0, len(req.PhoneNumbers))
	for _, number := range req.PhoneNumbers {
		numbers = append(numbers, msisdn{Mobile: number})
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(token).
		SetBody(smsRequest{
			SourceAddress: req.SenderID,
			Message:       req.Message,
			TransactionID: req.TransactionID,
			MSISDN:        numbers,
		}).
		Post(c.baseURL + smsPath)
	if err != nil {
		return nil, transportError("send", err)
	}
	if response == nil {
		return nil, &Error{Op: "send", Kind: KindTransport, Message: "gateway returned empty response"}
	}

	statusCode := response.StatusCode()
	body := strings.TrimSpace(response.String())
	if !isSuccessStatus(statusCode) {
		return nil, httpError("send", statusCode, body)
	}

	var parsed smsResponse
	if err := json.Unmarshal(response.Body(), &parsed); err != nil {
		return nil, &Error{
			Op:         "send",
			Kind:       KindInvalidResponse,
			StatusCode: statusCode,
			Message:    "unreadable send response",
			Cause:      err,
		}
	}

	result := &SendResponse{
		HTTPStatus: statusCode,
		Status:     parsed.Status,
		Comment:    parsed.Comment,
		Body:       body,
	}
	if strings.EqualFold(strings.TrimSpace(parsed.Status), statusSuccess) {
		return result, nil
	}

	kind := KindRejected
	if containsAuthMarker(parsed.Comment, parsed.ErrCode) {
		kind = KindAuth
	}
	return result, &Error{
		Op:         "send",
		Kind:       kind,
		StatusCode: statusCode,
		Message:    rejectionMessage(parsed),
	}
}

func (c *Client) requestToken(ctx context.Context, op, path string, body any) (*Token, error) {
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.baseURL + path)
	if err != nil {
		return nil, transportError(op, err)
	}
	if response == nil {
		return nil, &Error{Op: op, Kind: KindTransport, Message: "gateway returned empty response"}
	}

	statusCode := response.StatusCode()
	if !isSuccessStatus(statusCode) {
		return nil, httpError(op, statusCode, strings.TrimSpace(response.String()))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(response.Body(), &parsed); err != nil {
		return nil, &Error{
			Op:         op,
			Kind:       KindInvalidResponse,
			StatusCode: statusCode,
			Message:    "unreadable token response",
			Cause:      err,
		}
	}

	if status := strings.TrimSpace(parsed.Status); status != "" && !strings.EqualFold(status, statusSuccess) {
		return nil, &Error{
			Op:         op,
			Kind:       KindAuth,
			StatusCode: statusCode,
			Message:    strings.TrimSpace(parsed.Comment),
		}
	}
	if strings.TrimSpace(parsed.Token) == "" {
		return nil, &Error{Op: op, Kind: KindInvalidResponse, StatusCode: statusCode, Message: "token missing in response"}
	}
	if parsed.Expiration <= 0 {
		return nil, &Error{Op: op, Kind: KindInvalidResponse, StatusCode: statusCode, Message: "token lifetime missing in response"}
	}

	token := &Token{
		AccessToken: parsed.Token,
		ExpiresIn:   time.Duration(parsed.Expiration) * time.Second,
	}
	if strings.TrimSpace(parsed.RefreshToken) != "" && parsed.RefreshExpiration > 0 {
		token.RefreshToken = parsed.RefreshToken
		token.RefreshExpiresIn = time.Duration(parsed.RefreshExpiration) * time.Second
	}

	return token, nil
}

func isSuccessStatus(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

func transportError(op string, err error) *Error {
	message := "gateway request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		message = "gateway request timed out"
	}
	return &Error{Op: op, Kind: KindTransport, Message: message, Cause: err}
}

func httpError(op string, statusCode int, body string) *Error {
	kind := KindTransport
	if statusCode == http.StatusUnauthorized || containsAuthMarker(body) {
		kind = KindAuth
	}

	message := fmt.Sprintf("gateway returned status %d", statusCode)
	if body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	return &Error{Op: op, Kind: kind, StatusCode: statusCode, Message: message}
}

func rejectionMessage(resp smsResponse) string {
	comment := strings.TrimSpace(resp.Comment)
	if comment == "" {
		comment = "gateway rejected message"
	}
	if code := strings.TrimSpace(resp.ErrCode); code != "" {
		return fmt.Sprintf("%s (errCode=%s)", comment, code)
	}
	return comment
}
