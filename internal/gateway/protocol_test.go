package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameConstructors(t *testing.T) {
	req, err := NewRequest("1", MethodJoin, RoomParams{ConversationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeRequest, req.Type)
	assert.JSONEq(t, `{"conversationId":"c1"}`, string(req.Params))

	res, err := NewResponse("1", Ack{Status: "ok"})
	require.NoError(t, err)
	require.NotNil(t, res.OK)
	assert.True(t, *res.OK)

	errRes := NewErrorResponse("2", ErrorShape{Code: "bad", Message: "nope"})
	assert.False(t, *errRes.OK)
	assert.Equal(t, "bad", errRes.Error.Code)

	ev, err := NewEvent(EventNewMessage, map[string]string{"id": "m1"}, 7)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeEvent, ev.Type)
	assert.Equal(t, int64(7), ev.Seq)
}

func TestFrameWireFormat(t *testing.T) {
	res, err := newResponse("9", false, Ack{Status: "error", Message: "boom"})
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"res","id":"9","ok":false,"payload":{"status":"error","message":"boom"}}`, string(data))
}

func TestEnvelopeOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(Envelope{Success: true, Data: map[string]int{"n": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"n":1}}`, string(data))

	data, err = json.Marshal(Envelope{Error: &ErrorShape{Code: "NOT_FOUND", Message: "x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":{"code":"NOT_FOUND","message":"x"}}`, string(data))
}
