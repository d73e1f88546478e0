package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewPayload struct {
	CoffeeID string `json:"coffee_id"`
	Rating   int    `json:"rating"`
}

func TestNewEvent_Fields(t *testing.T) {
	data := reviewPayload{CoffeeID: "shop-1", Rating: 4}
	event, err := NewEvent("review.submitted", "shop-1", "coffee", "coffeebox", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "review.submitted", event.EventType)
	assert.Equal(t, "shop-1", event.AggregateID)
	assert.Equal(t, "coffee", event.AggregateType)
	assert.Equal(t, "coffeebox", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got reviewPayload
	require.NoError(t, json.Unmarshal(event.Data, &got))
	assert.Equal(t, data, got)
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a, err := NewEvent("review.submitted", "shop-1", "coffee", "coffeebox", nil)
	require.NoError(t, err)
	b, err := NewEvent("review.submitted", "shop-1", "coffee", "coffeebox", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("review.submitted", "shop-1", "coffee", "coffeebox", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review.submitted")
}

func TestEvent_MarshalUnmarshal(t *testing.T) {
	original, err := NewEvent("coffee.aggregate_corrected", "shop-9", "coffee", "coffeebox", map[string]any{"review_count": 3})
	require.NoError(t, err)
	original.WithCorrelationID("corr-abc").WithMetadata("reason", "drift")

	raw, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, "corr-abc", restored.CorrelationID)
	assert.Equal(t, "drift", restored.Metadata["reason"])
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestEvent_WithMetadata_NilMap(t *testing.T) {
	e := &Event{}
	e.WithMetadata("k", "v")
	assert.Equal(t, "v", e.Metadata["k"])
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	_, err := UnmarshalEvent([]byte("{not json"))
	assert.Error(t, err)

	_, err = UnmarshalEvent([]byte(`{"event_id":"x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event_type")
}

func TestEvent_UnmarshalData(t *testing.T) {
	e, err := NewEvent("review.submitted", "shop-1", "coffee", "coffeebox", reviewPayload{CoffeeID: "shop-1", Rating: 5})
	require.NoError(t, err)

	var p reviewPayload
	require.NoError(t, e.UnmarshalData(&p))
	assert.Equal(t, 5, p.Rating)
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "coffeebox.review.submitted", Topic("review", "submitted"))
	assert.Equal(t, "coffeebox.dlq.coffeebox.review.submitted", DLQTopic(Topic("review", "submitted")))
}
