// Package telephony talks to the communication service's call-automation
// API: it answers an incoming call and points its media stream at our
// websocket endpoint. Media sockets themselves are handled elsewhere; this
// package only does call control.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Media streaming is fixed to what the study pipeline expects.
const (
	TransportWebsocket = "websocket"
	ContentAudio       = "audio"
	ChannelUnmixed     = "unmixed"
	FormatPCM16KMono   = "pcm16KMono"
)

// AnswerRequest carries everything needed to accept one incoming call.
type AnswerRequest struct {
	IncomingCallContext string
	CallbackURL         string
	TransportURL        string
}

type Client interface {
	Answer(ctx context.Context, req AnswerRequest) error
}

// ConnectionString is the parsed endpoint=...;accesskey=... pair.
type ConnectionString struct {
	Endpoint  string
	AccessKey string
}

func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return ConnectionString{}, fmt.Errorf("connection string segment %q has no value", part)
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "endpoint":
			cs.Endpoint = strings.TrimRight(strings.TrimSpace(value), "/")
		case "accesskey":
			cs.AccessKey = strings.TrimSpace(value)
		}
	}
	if cs.Endpoint == "" {
		return ConnectionString{}, errors.New("connection string has no endpoint")
	}
	if cs.AccessKey == "" {
		return ConnectionString{}, errors.New("connection string has no accesskey")
	}
	return cs, nil
}

// New returns the HTTP client when a connection string is configured and
// the no-op client otherwise.
func New(connectionString string, log *slog.Logger) (Client, error) {
	if strings.TrimSpace(connectionString) == "" {
		return NewNoop(log), nil
	}
	return NewHTTPClient(connectionString, log)
}

// Noop ignores answer requests. Local runs have no call-control backend;
// media sockets are driven directly.
type Noop struct {
	log *slog.Logger
}

func NewNoop(log *slog.Logger) *Noop {
	if log == nil {
		log = slog.Default()
	}
	return &Noop{log: log}
}

func (n *Noop) Answer(_ context.Context, req AnswerRequest) error {
	n.log.Info("call control disabled, skipping answer", "callback_url", req.CallbackURL)
	return nil
}
