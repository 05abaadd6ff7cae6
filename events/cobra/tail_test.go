package cobra

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vx-labs/chat-hub/events"
)

func encode(t *testing.T, payload events.Payload) []byte {
	buf, err := events.Encode(events.New("p1", payload))
	require.NoError(t, err)
	return buf
}

func TestPrinter(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		out := &bytes.Buffer{}
		p := newPrinter(out, "json", nil)
		p.handle(encode(t, events.FreezeChanged{Frozen: true}))
		r := map[string]interface{}{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &r))
		require.Equal(t, "freeze", r["kind"])
		require.Equal(t, "p1", r["origin"])
	})
	t.Run("text", func(t *testing.T) {
		out := &bytes.Buffer{}
		p := newPrinter(out, "text", nil)
		p.handle(encode(t, events.NoticeInserted{Key: "rules", Message: "be nice"}))
		require.Contains(t, out.String(), string(events.KindNoticeInserted))
		require.Contains(t, out.String(), "be nice")
	})
	t.Run("kind filter", func(t *testing.T) {
		out := &bytes.Buffer{}
		p := newPrinter(out, "json", []string{string(events.KindPollStarted)})
		p.handle(encode(t, events.FreezeChanged{Frozen: true}))
		require.Equal(t, 0, out.Len())
		p.handle(encode(t, events.PollStarted{PollID: "poll-1", Title: "lunch?", Options: []string{"yes"}}))
		require.NotEqual(t, 0, out.Len())
	})
	t.Run("invalid", func(t *testing.T) {
		out := &bytes.Buffer{}
		newPrinter(out, "json", nil).handle([]byte("garbage"))
		require.Equal(t, 0, out.Len())
	})
}
