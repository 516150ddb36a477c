package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/whatsnote/internal/models"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "whatsnote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_NoteRoundTrip(t *testing.T) {
	s := newStore(t)

	_, err := s.GetNote("n1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutNote(&models.Note{ID: "n1", LastEdit: 100, Text: "first"}))
	require.NoError(t, s.PutNote(&models.Note{ID: "n1", LastEdit: 200, Text: "second"}))

	note, err := s.GetNote("n1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), note.LastEdit)
	assert.Equal(t, "second", note.Text)

	notes, err := s.ListNotes()
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestStore_MessageTagSurvivesRoundTrip(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.PutMessage(&models.Message{
		ID:     "m1",
		SentAt: 100,
		Text:   "buy milk",
		Tag:    &models.Tag{ID: 5, Name: "Buy", Color: "#14532d"},
	}))
	require.NoError(t, s.PutMessage(&models.Message{ID: "m2", SentAt: 200, Text: "untagged"}))

	msg, err := s.GetMessage("m1")
	require.NoError(t, err)
	require.NotNil(t, msg.Tag)
	assert.Equal(t, "Buy", msg.Tag.Name)
	assert.Equal(t, "#14532d", msg.Tag.Color)

	msg, err = s.GetMessage("m2")
	require.NoError(t, err)
	assert.Nil(t, msg.Tag)
}

func TestStore_DeleteMessageIsIdempotent(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.PutMessage(&models.Message{ID: "m1", SentAt: 100, Text: "x"}))
	require.NoError(t, s.DeleteMessage("m1"))
	require.NoError(t, s.DeleteMessage("m1"))
	require.NoError(t, s.DeleteMessage("never-existed"))

	_, err := s.GetMessage("m1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListMessagesMostRecentChronological(t *testing.T) {
	s := newStore(t)

	for i, sentAt := range []int64{300, 100, 200, 400} {
		require.NoError(t, s.PutMessage(&models.Message{
			ID:     string(rune('a' + i)),
			SentAt: sentAt,
			Text:   "msg",
		}))
	}

	messages, err := s.ListMessages(3)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// The three newest, oldest first
	assert.Equal(t, int64(200), messages[0].SentAt)
	assert.Equal(t, int64(300), messages[1].SentAt)
	assert.Equal(t, int64(400), messages[2].SentAt)
}

func TestStore_PendingQueueOrderAndAck(t *testing.T) {
	s := newStore(t)

	data, _ := json.Marshal(models.MessagePayload{Text: "hi"})
	require.NoError(t, s.InsertPending(&models.Event{ID: "e2", ItemID: "m1", EmittedAt: 200, Type: models.EventCheckMsg}))
	require.NoError(t, s.InsertPending(&models.Event{ID: "e1", ItemID: "m1", EmittedAt: 100, Type: models.EventPostMsg, Data: data}))

	pending, err := s.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "e1", pending[0].ID, "queue drains in emission order")
	assert.Equal(t, models.EventPostMsg, pending[0].Type)
	assert.JSONEq(t, string(data), string(pending[0].Data))

	require.NoError(t, s.DeletePending("e1"))
	pending, err = s.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e2", pending[0].ID)
}

func TestStore_InsertPendingReplacesSameID(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.InsertPending(&models.Event{ID: "e1", ItemID: "m1", EmittedAt: 100, Type: models.EventCheckMsg}))
	require.NoError(t, s.InsertPending(&models.Event{ID: "e1", ItemID: "m1", EmittedAt: 150, Type: models.EventCheckMsg}))

	pending, err := s.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(150), pending[0].EmittedAt)
}

func TestStore_WatermarkDefaultsToZero(t *testing.T) {
	s := newStore(t)

	watermark, err := s.Watermark()
	require.NoError(t, err)
	assert.Equal(t, int64(0), watermark)

	require.NoError(t, s.SetWatermark(12345))
	require.NoError(t, s.SetWatermark(23456))

	watermark, err = s.Watermark()
	require.NoError(t, err)
	assert.Equal(t, int64(23456), watermark)
}
