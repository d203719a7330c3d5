package conn_test

import (
	"context"
	"testing"

	"github.com/relaydrop/relaydrop/internal/conn"
	"github.com/relaydrop/relaydrop/protocol/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	conn chan signal.Frame
}

func (m mockConn) Write(ctx context.Context, f signal.Frame) error {
	m.conn <- f
	return nil
}

func (m mockConn) Read(ctx context.Context) (signal.Frame, error) {
	return <-m.conn, nil
}

func TestSignal(t *testing.T) {
	c := make(chan signal.Frame, 2)
	s1 := conn.Signal{Conn: mockConn{conn: c}}
	s2 := conn.Signal{Conn: mockConn{conn: c}}
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		err := s1.WriteMsg(ctx, signal.Metadata{Filename: "a.txt", Filesize: 3})
		require.NoError(t, err)

		msg, err := s2.ReadMsg(ctx)
		require.NoError(t, err)
		assert.Equal(t, signal.Metadata{Filename: "a.txt", Filesize: 3}, msg)
	})

	t.Run("expected kind", func(t *testing.T) {
		err := s1.WriteMsg(ctx, signal.TransferComplete{})
		require.NoError(t, err)

		_, err = s2.ReadMsg(ctx, signal.KindMetadata)
		var kindErr signal.Error
		require.ErrorAs(t, err, &kindErr)
		assert.Equal(t, signal.KindTransferComplete, kindErr.Got)
	})

	t.Run("malformed", func(t *testing.T) {
		c <- signal.Text("{")
		_, err := s2.ReadMsg(ctx)
		assert.ErrorIs(t, err, signal.ErrMalformedFrame)
	})
}
