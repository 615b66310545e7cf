package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/armorline/storefront/pkg/messaging/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type mockAckableMsg struct {
	mock.Mock
}

func (m *mockAckableMsg) Data() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *mockAckableMsg) Ack() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockAckableMsg) Nak() error {
	args := m.Called()
	return args.Error(0)
}

// captureSink records delivered notifications and can be made to fail.
type captureSink struct {
	mu       sync.Mutex
	messages []string
	orderIDs []uuid.UUID
	err      error
}

func (s *captureSink) Notify(_ context.Context, message string, orderID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	s.orderIDs = append(s.orderIDs, orderID)
	return nil
}

func (s *captureSink) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	copy(out, s.messages)
	return out
}

func Test_handleMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orderID := uuid.New()

	validPayload, _ := json.Marshal(&events.OrderCreatedEvent{
		OrderID:     orderID,
		OrderNumber: "ORD-20260314092653-AB12CD",
		UserID:      uuid.New(),
		TotalAmount: 18197,
		CreatedAt:   time.Now(),
	})

	testCases := []struct {
		name       string
		sink       *captureSink
		newMockMsg func() *mockAckableMsg
		verify     func(t *testing.T, sink *captureSink)
	}{
		{
			name: "valid message is delivered and acked",
			sink: &captureSink{},
			newMockMsg: func() *mockAckableMsg {
				msg := new(mockAckableMsg)
				msg.On("Data").Return(validPayload).Times(1)
				msg.On("Ack").Return(nil).Times(1)
				return msg
			},
			verify: func(t *testing.T, sink *captureSink) {
				assert.Len(t, sink.messages, 1)
				assert.Contains(t, sink.messages[0], "ORD-20260314092653-AB12CD")
				assert.Equal(t, orderID, sink.orderIDs[0])
			},
		},
		{
			name: "invalid message is nacked",
			sink: &captureSink{},
			newMockMsg: func() *mockAckableMsg {
				msg := new(mockAckableMsg)
				msg.On("Data").Return([]byte("invalid data")).Times(1)
				msg.On("Nak").Return(nil).Times(1)
				return msg
			},
			verify: func(t *testing.T, sink *captureSink) {
				assert.Empty(t, sink.messages)
			},
		},
		{
			name: "sink failure still acks",
			sink: &captureSink{err: errors.New("smtp down")},
			newMockMsg: func() *mockAckableMsg {
				msg := new(mockAckableMsg)
				msg.On("Data").Return(validPayload).Times(1)
				msg.On("Ack").Return(nil).Times(1)
				return msg
			},
			verify: func(t *testing.T, sink *captureSink) {
				assert.Empty(t, sink.messages)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			mockMsg := tc.newMockMsg()

			// when
			handleMessage(context.Background(), mockMsg, tc.sink, logger)

			// then
			mockMsg.AssertExpectations(t)
			tc.verify(t, tc.sink)
		})
	}
}

func Test_handleMessage_NilMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.NotPanics(t, func() {
		handleMessage(context.Background(), nil, &captureSink{}, logger)
	})
}

// spanSink records the span context the sink was invoked under.
type spanSink struct {
	spanCtx trace.SpanContext
}

func (s *spanSink) Notify(ctx context.Context, _ string, _ uuid.UUID) error {
	s.spanCtx = trace.SpanContextFromContext(ctx)
	return nil
}

func Test_handleMessage_ResumesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	traceID := trace.TraceID{0x0a}
	carrier := propagation.MapCarrier{}
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     trace.SpanID{0x0b},
		TraceFlags: trace.FlagsSampled,
	})
	otel.GetTextMapPropagator().Inject(trace.ContextWithSpanContext(context.Background(), spanCtx), carrier)

	payload, err := json.Marshal(&events.OrderCreatedEvent{
		Carrier:     carrier,
		OrderID:     uuid.New(),
		OrderNumber: "ORD-20260314092653-AB12CD",
		TotalAmount: 18197,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)

	msg := new(mockAckableMsg)
	msg.On("Data").Return(payload).Times(1)
	msg.On("Ack").Return(nil).Times(1)

	sink := &spanSink{}
	handleMessage(context.Background(), msg, sink, logger)

	msg.AssertExpectations(t)
	assert.Equal(t, traceID, sink.spanCtx.TraceID())
}
