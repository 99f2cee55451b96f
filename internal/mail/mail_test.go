// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/holomush/accountd/pkg/errutil"
)

func testMessage() Message {
	return Message{
		From:    "noreply@example.com",
		To:      "alice@example.com",
		Subject: SubjectVerify,
		HTML:    "<p>hello</p>",
	}
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Message)
		field  string
	}{
		{"missing recipient", func(m *Message) { m.To = " " }, "to"},
		{"missing sender", func(m *Message) { m.From = "" }, "from"},
		{"header injection", func(m *Message) { m.Subject = "hi\r\nBcc: evil@example.com" }, "header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := testMessage()
			tt.mutate(&msg)
			err := msg.Validate()
			errutil.AssertErrorCode(t, err, "MAIL_INVALID")
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}

	assert.NoError(t, testMessage().Validate())
}

func TestEncode(t *testing.T) {
	raw, err := encode(testMessage(), time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	out := string(raw)

	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "Subject: Please verify your email\r\n")
	assert.Contains(t, out, "Content-Type: text/html")
	assert.Contains(t, out, "Date: Fri, 02 Jan 2026 03:04:05 +0000\r\n")
	assert.Regexp(t, `Message-ID: <[0-9a-f-]{36}@accountd>`, out)
	assert.Contains(t, out, "<p>hello</p>")
}

func TestEncode_InvalidAddress(t *testing.T) {
	msg := testMessage()
	msg.To = "not an address"
	_, err := encode(msg, time.Now())
	errutil.AssertErrorCode(t, err, "MAIL_INVALID")
	errutil.AssertErrorContext(t, err, "field", "to")
}

// fakeRelay records messages handed to the SMTP client.
type fakeRelay struct {
	msgs []*gomail.Msg
	ctx  context.Context
	err  error
}

func (f *fakeRelay) DialAndSendWithContext(ctx context.Context, msgs ...*gomail.Msg) error {
	f.ctx = ctx
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestSMTPMailer(t *testing.T) {
	t.Run("requires host", func(t *testing.T) {
		_, err := NewSMTPMailer(SMTPConfig{})
		errutil.AssertErrorCode(t, err, "MAIL_CONFIG_INVALID")
	})

	t.Run("rejects unknown tls policy", func(t *testing.T) {
		_, err := NewSMTPMailer(SMTPConfig{Host: "localhost", TLS: "starttls"})
		errutil.AssertErrorCode(t, err, "MAIL_CONFIG_INVALID")
		errutil.AssertErrorContext(t, err, "field", "smtp.tls")
	})

	t.Run("accepts every tls policy", func(t *testing.T) {
		for _, policy := range []string{"", TLSOpportunistic, TLSMandatory, TLSNone} {
			_, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p", TLS: policy})
			assert.NoError(t, err, policy)
		}
	})

	t.Run("sends through relay", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"})
		require.NoError(t, err)
		relay := &fakeRelay{}
		m.client = relay

		ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")
		require.NoError(t, m.Send(ctx, testMessage()))
		require.Len(t, relay.msgs, 1)
		assert.Equal(t, "req-1", relay.ctx.Value(ctxKey{}))

		rcpts, err := relay.msgs[0].GetRecipients()
		require.NoError(t, err)
		assert.Equal(t, []string{"alice@example.com"}, rcpts)
		from, err := relay.msgs[0].GetSender(false)
		require.NoError(t, err)
		assert.Equal(t, "noreply@example.com", from)
	})

	t.Run("invalid message never reaches relay", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{Host: "localhost"})
		require.NoError(t, err)
		relay := &fakeRelay{}
		m.client = relay

		err = m.Send(context.Background(), Message{From: "noreply@example.com"})
		errutil.AssertErrorCode(t, err, "MAIL_INVALID")
		assert.Empty(t, relay.msgs)
	})

	t.Run("relay failure is coded", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{Host: "localhost"})
		require.NoError(t, err)
		m.client = &fakeRelay{err: errors.New("connection refused")}

		err = m.Send(context.Background(), testMessage())
		errutil.AssertErrorCode(t, err, "MAIL_SEND_FAILED")
		errutil.AssertErrorContext(t, err, "transport", TransportSMTP)
		errutil.AssertErrorContext(t, err, "host", "localhost")
	})
}

type ctxKey struct{}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, m.Send(context.Background(), testMessage()))
	assert.Contains(t, buf.String(), `"to":"alice@example.com"`)
	assert.Contains(t, buf.String(), `"subject":"Please verify your email"`)

	err := m.Send(context.Background(), Message{})
	errutil.AssertErrorCode(t, err, "MAIL_INVALID")
}

type fakePutter struct {
	mu     sync.Mutex
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(in.Body); err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body.String())
	return &s3.PutObjectOutput{}, nil
}

func TestS3Mailer(t *testing.T) {
	t.Run("requires bucket", func(t *testing.T) {
		_, err := NewS3Mailer(context.Background(), S3Config{})
		errutil.AssertErrorCode(t, err, "MAIL_CONFIG_INVALID")
	})

	t.Run("drops eml object under dated key", func(t *testing.T) {
		putter := &fakePutter{}
		m := newS3Mailer(putter, "outbox", "mail")
		m.now = func() time.Time { return time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC) }

		require.NoError(t, m.Send(context.Background(), testMessage()))
		require.Len(t, putter.inputs, 1)

		in := putter.inputs[0]
		assert.Equal(t, "outbox", *in.Bucket)
		assert.True(t, strings.HasPrefix(*in.Key, "mail/2026/03/04/"), *in.Key)
		assert.True(t, strings.HasSuffix(*in.Key, ".eml"))
		assert.Equal(t, "message/rfc822", *in.ContentType)
		assert.Equal(t, "alice@example.com", in.Metadata["to"])
		assert.Contains(t, putter.bodies[0], "<p>hello</p>")
	})

	t.Run("upload failure is coded", func(t *testing.T) {
		m := newS3Mailer(&fakePutter{err: errors.New("access denied")}, "outbox", "")
		err := m.Send(context.Background(), testMessage())
		errutil.AssertErrorCode(t, err, "MAIL_SEND_FAILED")
		errutil.AssertErrorContext(t, err, "bucket", "outbox")
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	m, err := New(ctx, Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	m, err = New(ctx, Config{Transport: TransportSMTP, SMTP: SMTPConfig{Host: "localhost"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)

	_, err = New(ctx, Config{Transport: TransportSMTP}, nil)
	errutil.AssertErrorCode(t, err, "MAIL_CONFIG_INVALID")

	_, err = New(ctx, Config{Transport: "pigeon"}, nil)
	errutil.AssertErrorCode(t, err, "MAIL_CONFIG_INVALID")
}
