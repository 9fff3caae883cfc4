package protocol

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(ctx context.Context, msg Message) (json.RawMessage, error) {
	return Response{Success: true, Message: string(msg.Type)}.JSON(), nil
}

func TestLocalBus_Request(t *testing.T) {
	b := NewLocalBus(nil)
	_, err := b.Subscribe(SubjectCoordinator, echo)
	require.NoError(t, err)

	raw, err := b.Request(context.Background(), SubjectCoordinator, Message{Type: GetStatus})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "GET_STATUS", resp.Message)
}

func TestLocalBus_NoResponder(t *testing.T) {
	b := NewLocalBus(nil)
	_, err := b.Request(context.Background(), "nobody", Message{Type: GetStatus})
	assert.ErrorIs(t, err, ErrNoResponder)
}

func TestLocalBus_RequestHonoursContext(t *testing.T) {
	b := NewLocalBus(nil)
	release := make(chan struct{})
	defer close(release)
	b.Subscribe("slow", func(ctx context.Context, msg Message) (json.RawMessage, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Request(ctx, "slow", Message{Type: CheckSlots})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalBus_PublishFansOut(t *testing.T) {
	b := NewLocalBus(nil)
	var n atomic.Int32
	done := make(chan struct{}, 3)
	h := func(ctx context.Context, msg Message) (json.RawMessage, error) {
		n.Add(1)
		done <- struct{}{}
		return nil, nil
	}
	b.Subscribe(SubjectDetectors, h)
	b.Subscribe(SubjectDetectors, h)
	unsub, _ := b.Subscribe(SubjectDetectors, h)
	unsub()
	unsub()

	require.NoError(t, b.Publish(context.Background(), SubjectDetectors, Message{Type: CheckSlots}))
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handler not invoked")
		}
	}
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), n.Load())
}

func TestLocalBus_PublishSurvivesCancelledSender(t *testing.T) {
	b := NewLocalBus(nil)
	got := make(chan error, 1)
	b.Subscribe("x", func(ctx context.Context, msg Message) (json.RawMessage, error) {
		got <- ctx.Err()
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Publish(ctx, "x", Message{Type: CheckSlots})
	assert.NoError(t, <-got)
}

func TestMessage_Decode(t *testing.T) {
	sound := false
	m, err := NewMessage(StartMonitoring, StartPayload{Config: &ConfigUpdate{CheckIntervalMinutes: 10, NotificationSound: &sound}})
	require.NoError(t, err)

	var p StartPayload
	require.NoError(t, m.Decode(&p))
	require.NotNil(t, p.Config)
	assert.Equal(t, 10, p.Config.CheckIntervalMinutes)
	assert.Equal(t, "", p.Config.TargetURL)
	require.NotNil(t, p.Config.NotificationSound)
	assert.False(t, *p.Config.NotificationSound)

	var empty StartPayload
	require.NoError(t, Message{Type: StartMonitoring}.Decode(&empty))
	assert.Nil(t, empty.Config)

	assert.Error(t, Message{Type: SlotsFound, Payload: json.RawMessage(`{"count":"x"}`)}.Decode(&DetectionResult{}))
}

func TestResponse_OmitsEmpty(t *testing.T) {
	assert.JSONEq(t, `{"success":false,"error":"License required"}`, string(Fail("License required").JSON()))
	assert.JSONEq(t, `{"success":true}`, string(OK().JSON()))
}

// Runs against a live server when SLOTHUNTER_TEST_NATS_URL is set.
func TestNATSBus_RequestReply(t *testing.T) {
	url := os.Getenv("SLOTHUNTER_TEST_NATS_URL")
	if url == "" {
		t.Skip("SLOTHUNTER_TEST_NATS_URL not set")
	}
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	b := NewNATSBus(nc, nil)
	subject := DetectorSubject("test-" + strconv.FormatInt(time.Now().UnixNano(), 36))
	unsub, err := b.Subscribe(subject, echo)
	require.NoError(t, err)
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := b.Request(ctx, subject, Message{Type: GetPageInfo})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "GET_PAGE_INFO", resp.Message)
}
