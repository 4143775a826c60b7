package telephony

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dr-redtec/Voice-AI-Latency/internal/reliability"
)

const (
	answerAPIVersion = "2024-09-15"
	answerPath       = "/calling/callConnections:answer"

	answerAttempts    = 3
	answerBackoffBase = 200 * time.Millisecond
	answerBackoffCap  = 2 * time.Second
)

type answerCallRequest struct {
	IncomingCallContext   string                `json:"incomingCallContext"`
	CallbackURI           string                `json:"callbackUri"`
	MediaStreamingOptions mediaStreamingOptions `json:"mediaStreamingOptions"`
}

type mediaStreamingOptions struct {
	TransportURL        string `json:"transportUrl"`
	TransportType       string `json:"transportType"`
	ContentType         string `json:"contentType"`
	AudioChannelType    string `json:"audioChannelType"`
	AudioFormat         string `json:"audioFormat"`
	StartMediaStreaming bool   `json:"startMediaStreaming"`
	EnableBidirectional bool   `json:"enableBidirectional"`
}

func defaultMediaStreaming(transportURL string) mediaStreamingOptions {
	return mediaStreamingOptions{
		TransportURL:        transportURL,
		TransportType:       TransportWebsocket,
		ContentType:         ContentAudio,
		AudioChannelType:    ChannelUnmixed,
		AudioFormat:         FormatPCM16KMono,
		StartMediaStreaming: true,
		EnableBidirectional: true,
	}
}

// HTTPClient answers calls against the call-automation REST endpoint.
// Requests are signed with the connection string's access key using the
// service's HMAC-SHA256 scheme.
type HTTPClient struct {
	endpoint  *url.URL
	accessKey []byte
	client    *http.Client
	log       *slog.Logger

	now func() time.Time
}

func NewHTTPClient(connectionString string, log *slog.Logger) (*HTTPClient, error) {
	cs, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	endpoint, err := url.Parse(cs.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(cs.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("decode access key: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPClient{
		endpoint:  endpoint,
		accessKey: key,
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log,
		now:       time.Now,
	}, nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("call automation status %d: %s", e.status, e.body)
}

func answerRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return reliability.IsRetryableHTTPStatus(se.status)
	}
	// Transport errors are worth another attempt.
	return true
}

// Answer accepts the incoming call and starts bidirectional PCM 16kHz mono
// media streaming toward the transport URL.
func (c *HTTPClient) Answer(ctx context.Context, req AnswerRequest) error {
	if req.IncomingCallContext == "" {
		return errors.New("incoming call context is empty")
	}
	if req.CallbackURL == "" || req.TransportURL == "" {
		return errors.New("callback and transport URLs are required")
	}
	payload, err := json.Marshal(answerCallRequest{
		IncomingCallContext:   req.IncomingCallContext,
		CallbackURI:           req.CallbackURL,
		MediaStreamingOptions: defaultMediaStreaming(req.TransportURL),
	})
	if err != nil {
		return fmt.Errorf("marshal answer request: %w", err)
	}

	err = reliability.Do(ctx, answerAttempts, answerBackoffBase, answerBackoffCap, answerRetryable,
		func(ctx context.Context) error {
			return c.post(ctx, payload)
		})
	if err != nil {
		return fmt.Errorf("answer call: %w", err)
	}
	c.log.Info("call answered", "callback_url", req.CallbackURL)
	return nil
}

func (c *HTTPClient) post(ctx context.Context, payload []byte) error {
	target := *c.endpoint
	target.Path = answerPath
	target.RawQuery = "api-version=" + answerAPIVersion

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.sign(httpReq, payload)

	res, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &statusError{status: res.StatusCode, body: string(body)}
	}
	return nil
}

// sign applies the HMAC-SHA256 request signing scheme. The signed string is
// the method, the path with query, and "date;host;content-hash", joined by
// newlines.
func (c *HTTPClient) sign(req *http.Request, payload []byte) {
	hash := sha256.Sum256(payload)
	contentHash := base64.StdEncoding.EncodeToString(hash[:])
	date := c.now().UTC().Format(http.TimeFormat)

	pathAndQuery := req.URL.Path
	if req.URL.RawQuery != "" {
		pathAndQuery += "?" + req.URL.RawQuery
	}
	stringToSign := req.Method + "\n" + pathAndQuery + "\n" + date + ";" + req.URL.Host + ";" + contentHash

	mac := hmac.New(sha256.New, c.accessKey)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHash)
	req.Header.Set("Authorization",
		"HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}
