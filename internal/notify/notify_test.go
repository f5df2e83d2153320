package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/oprema/internal/model"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func notification() model.Notification {
	return model.Notification{
		ID:         uuid.NewString(),
		Kind:       model.NotificationFulfilled,
		EventID:    42,
		EventTitle: "Science fair",
		Department: "Science",
		Readiness:  model.ReadinessShortage,
		Lines: []model.LineChange{{
			Before: model.EquipmentLine{Name: "Chair", QtyNeeded: 10},
			After:  model.EquipmentLine{Name: "Chair", QtyNeeded: 10, Status: model.LineApproved, ApprovedQty: 7},
		}},
		CreatedAt: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}
}

func TestKafkaNotify(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w}
	n := notification()

	require.NoError(t, k.Notify(context.Background(), n))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, n.CreatedAt, msg.Time)
	assert.Contains(t, msg.Headers, kafka.Header{Key: "kind", Value: []byte(model.NotificationFulfilled)})

	var got model.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, n, got)
}

func TestKafkaNotifyError(t *testing.T) {
	broker := errors.New("leader not available")
	k := &Kafka{writer: &fakeWriter{err: broker}}

	err := k.Notify(context.Background(), notification())
	assert.ErrorIs(t, err, broker)
}

func TestLogNotify(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, l.Notify(context.Background(), notification()))

	out := buf.String()
	assert.Contains(t, out, `"kind":"equipment.fulfilled"`)
	assert.Contains(t, out, `"event_id":42`)
	assert.Contains(t, out, `"changed":1`)
}
