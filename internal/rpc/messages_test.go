package rpc

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heronworks/heron/pkg/types"
)

func TestUpdateRequestRoundTrip(t *testing.T) {
	in := &UpdateRequest{
		Update: types.StatusUpdate{
			FrameworkID: "f1",
			TaskID:      "t1",
			State:       types.TaskFinished,
			Message:     "done",
			Timestamp:   42,
			UUID:        uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		},
	}

	out := &UpdateRequest{}
	require.NoError(t, out.unmarshal(in.marshal()))
	assert.Equal(t, in, out)
}

func TestAckRequestRoundTrip(t *testing.T) {
	in := &AckRequest{
		FrameworkID: "f1",
		TaskID:      "t1",
		UUID:        uuid.MustParse("11111111-2222-3333-4444-555555555555"),
	}

	out := &AckRequest{}
	require.NoError(t, out.unmarshal(in.marshal()))
	assert.Equal(t, in, out)
}

func TestCodecDispatch(t *testing.T) {
	c := codec{}

	data, err := c.Marshal(&AckRequest{TaskID: "t1"})
	require.NoError(t, err)

	out := &AckRequest{}
	require.NoError(t, c.Unmarshal(data, out))
	assert.Equal(t, types.TaskID("t1"), out.TaskID)

	_, err = c.Marshal("not a message")
	assert.Error(t, err)
	assert.Error(t, c.Unmarshal(nil, "not a message"))
}

func TestEmptyResponses(t *testing.T) {
	assert.Empty(t, (&UpdateResponse{}).marshal())
	assert.NoError(t, (&UpdateResponse{}).unmarshal(nil))
	assert.Empty(t, (&AckResponse{}).marshal())
	assert.NoError(t, (&AckResponse{}).unmarshal(nil))
}
