package telephony

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseConnectionString(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    ConnectionString
		wantErr bool
	}{
		{
			name: "plain",
			in:   "endpoint=https://acs.example.com;accesskey=c2VjcmV0",
			want: ConnectionString{Endpoint: "https://acs.example.com", AccessKey: "c2VjcmV0"},
		},
		{
			name: "trailing slash and spaces",
			in:   " endpoint = https://acs.example.com/ ; accesskey = c2VjcmV0 ",
			want: ConnectionString{Endpoint: "https://acs.example.com", AccessKey: "c2VjcmV0"},
		},
		{
			name: "case insensitive keys with extra segments",
			in:   "Endpoint=https://acs.example.com;AccessKey=abc==;extra=1",
			want: ConnectionString{Endpoint: "https://acs.example.com", AccessKey: "abc=="},
		},
		{
			name:    "missing accesskey",
			in:      "endpoint=https://acs.example.com",
			wantErr: true,
		},
		{
			name:    "missing endpoint",
			in:      "accesskey=c2VjcmV0",
			wantErr: true,
		},
		{
			name:    "segment without value",
			in:      "endpoint=https://acs.example.com;accesskey",
			wantErr: true,
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseConnectionString(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseConnectionString(%q) error = nil, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConnectionString(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseConnectionString(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewSelectsClient(t *testing.T) {
	client, err := New("", discardLogger())
	if err != nil {
		t.Fatalf("New(\"\") error = %v", err)
	}
	if _, ok := client.(*Noop); !ok {
		t.Fatalf("New(\"\") = %T, want *Noop", client)
	}

	key := base64.StdEncoding.EncodeToString([]byte("test-access-key"))
	client, err = New("endpoint=https://acs.example.com;accesskey="+key, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := client.(*HTTPClient); !ok {
		t.Fatalf("New() = %T, want *HTTPClient", client)
	}
}

func TestNoopAnswer(t *testing.T) {
	n := NewNoop(discardLogger())
	err := n.Answer(context.Background(), AnswerRequest{
		IncomingCallContext: "ctx",
		CallbackURL:         "https://public.example/acs-events/",
		TransportURL:        "wss://public.example/media",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
}
