package wire

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heronworks/heron/pkg/types"
)

func testUpdate() types.StatusUpdate {
	return types.StatusUpdate{
		FrameworkID: "framework-1",
		TaskID:      "task-1",
		State:       types.TaskRunning,
		Message:     "task is running",
		Data:        []byte{0x01, 0x02},
		Timestamp:   1700000000000,
		UUID:        uuid.MustParse("11111111-2222-3333-4444-555555555555"),
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	u := testUpdate()

	b := AppendUpdate(nil, u)
	got, err := UnmarshalUpdate(b)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestUpdateRoundTripZeroFields(t *testing.T) {
	u := types.StatusUpdate{UUID: uuid.MustParse("99999999-0000-0000-0000-000000000000")}

	got, err := UnmarshalUpdate(AppendUpdate(nil, u))
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestUpdateEncodingDeterministic(t *testing.T) {
	u := testUpdate()
	assert.Equal(t, AppendUpdate(nil, u), AppendUpdate(nil, u))
}

func TestRecordRoundTripUpdate(t *testing.T) {
	r := Record{Type: RecordUpdate, Update: testUpdate()}

	got, err := UnmarshalRecord(MarshalRecord(r))
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestRecordRoundTripAck(t *testing.T) {
	r := Record{Type: RecordAck, UUID: testUpdate().UUID}

	got, err := UnmarshalRecord(MarshalRecord(r))
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestUnmarshalTruncated(t *testing.T) {
	b := MarshalRecord(Record{Type: RecordUpdate, Update: testUpdate()})

	_, err := UnmarshalRecord(b[:len(b)-3])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDelimitedRoundTrip(t *testing.T) {
	var buf []byte
	msgs := [][]byte{
		MarshalRecord(Record{Type: RecordUpdate, Update: testUpdate()}),
		MarshalRecord(Record{Type: RecordAck, UUID: testUpdate().UUID}),
		{}, // zero-length message is legal
	}
	for _, m := range msgs {
		buf = AppendDelimited(buf, m)
	}

	r := bufio.NewReader(bytes.NewReader(buf))
	for _, want := range msgs {
		got, err := ReadDelimited(r)
		require.NoError(t, err)
		assert.Equal(t, append([]byte(nil), want...), append([]byte(nil), got...))
	}

	_, err := ReadDelimited(r)
	assert.Equal(t, io.EOF, err)
}

func TestReadDelimitedTornTail(t *testing.T) {
	buf := AppendDelimited(nil, MarshalRecord(Record{Type: RecordAck, UUID: testUpdate().UUID}))

	// Cut the final record short: the framing promises more bytes than
	// remain, as after a crash mid-append.
	r := bufio.NewReader(bytes.NewReader(buf[:len(buf)-1]))
	_, err := ReadDelimited(r)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}
