package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Price float64 `json:"price"`
}

var errBadInput = errors.New("bad input")

func classify(err error) string {
	if errors.Is(err, errBadInput) {
		return CodeInvalidArgument
	}
	return CodeInternal
}

func TestReplyEnvelope_RoundTrip(t *testing.T) {
	data, err := encodeReply(quote{Price: 10.45}, nil, classify)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"price":10.45}}`, string(data))

	var q quote
	require.NoError(t, decodeReply(data, &q))
	assert.Equal(t, 10.45, q.Price)
}

func TestReplyEnvelope_Error(t *testing.T) {
	data, err := encodeReply(nil, errBadInput, classify)
	require.NoError(t, err)

	err = decodeReply(data, &quote{})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, CodeInvalidArgument, remote.Code)
	assert.Equal(t, "bad input", remote.Message)

	data, _ = encodeReply(nil, errors.New("boom"), classify)
	require.ErrorAs(t, decodeReply(data, nil), &remote)
	assert.Equal(t, CodeInternal, remote.Code)
}

func TestReplyEnvelope_Malformed(t *testing.T) {
	assert.Error(t, decodeReply([]byte("not json"), &quote{}))
}

func TestUnmarshalJSON(t *testing.T) {
	q, err := UnmarshalJSON[quote]([]byte(`{"price":5.57}`))
	require.NoError(t, err)
	assert.Equal(t, 5.57, q.Price)

	_, err = UnmarshalJSON[quote]([]byte(`{`))
	assert.Error(t, err)
}

// 本地没有 NATS 时跳过
func setupConn(t *testing.T) *nats.Conn {
	conn, err := Connect(DefaultConfig(), nil)
	if err != nil {
		t.Skipf("skipping test; nats not available: %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

func TestRequestReply(t *testing.T) {
	conn := setupConn(t)

	sub := NewSubscriber(conn, time.Second, nil).WithClassifier(classify)
	defer sub.Close()

	require.NoError(t, sub.Reply("test.pricing.echo", "", func(_ context.Context, data []byte) (any, error) {
		q, err := UnmarshalJSON[quote](data)
		if err != nil {
			return nil, err
		}
		if q.Price < 0 {
			return nil, errBadInput
		}
		return quote{Price: q.Price * 2}, nil
	}))

	pub := NewPublisher(conn, time.Second)

	var out quote
	require.NoError(t, pub.Request(context.Background(), "test.pricing.echo", quote{Price: 2.5}, &out))
	assert.Equal(t, 5.0, out.Price)

	err := pub.Request(context.Background(), "test.pricing.echo", quote{Price: -1}, &out)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, CodeInvalidArgument, remote.Code)
}

func TestSubscribe(t *testing.T) {
	conn := setupConn(t)

	got := make(chan string, 1)
	sub := NewSubscriber(conn, time.Second, nil)
	defer sub.Close()
	require.NoError(t, sub.Subscribe(func(subject string, _ []byte) error {
		got <- subject
		return nil
	}, "test.pricing.events"))

	pub := NewPublisher(conn, time.Second)
	require.NoError(t, pub.Publish("test.pricing.events", quote{Price: 1}))
	require.NoError(t, pub.Flush())

	select {
	case s := <-got:
		assert.Equal(t, "test.pricing.events", s)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
