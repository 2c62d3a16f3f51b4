package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadMessage(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	require.NoError(t, WriteMessage(ctx, &buf, []byte("hello")))
	require.NoError(t, WriteMessage(ctx, &buf, nil))
	assert.Equal(t, []byte{5, 0, 0, 0}, buf.Bytes()[:4])

	msg, err := ReadMessage(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), msg)

	msg, err = ReadMessage(ctx, &buf)
	require.NoError(t, err)
	assert.Empty(t, msg)

	_, err = ReadMessage(ctx, &buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessageTooLarge(t *testing.T) {
	frame := binary.LittleEndian.AppendUint32(nil, MaxMessageSize+1)
	_, err := ReadMessage(context.Background(), bytes.NewReader(frame))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestReadMessageTruncated(t *testing.T) {
	frame := binary.LittleEndian.AppendUint32(nil, 10)
	frame = append(frame, 1, 2, 3)
	_, err := ReadMessage(context.Background(), bytes.NewReader(frame))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadMessageCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close() //nolint:errcheck
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadMessage(ctx, r)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetHandler(StreamKindCandidateResult)
	assert.Error(t, err)

	r.RegisterHandler(StreamKindCandidateResult, StreamHandlerFunc(nil))
	_, err = r.GetHandler(StreamKindCandidateResult)
	assert.NoError(t, err)
}
