package chat

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-chat-core/internal/entity"
)

func shot(seq int64, file, caption string) *entity.ChatMessage {
	sender := uuid.New()
	m := &entity.ChatMessage{
		Id:                 uuid.New(),
		SenderId:           &sender,
		SenderName:         "Dana Scully",
		Content:            caption,
		IsScreenshot:       true,
		ScreenshotFileName: file,
		SequenceNumber:     seq,
	}
	if seq == 0 {
		m.Id = uuid.Nil
		m.TempId = uuid.New()
	}
	return m
}

func TestDeriveScreenshotsFiltersAndOrders(t *testing.T) {
	sender := uuid.New()
	msgs := []*entity.ChatMessage{
		{Id: uuid.New(), SenderId: &sender, Content: "plain text", SequenceNumber: 1},
		shot(3, "b.png", "second"),
		shot(2, "a.png", "first"),
		// Screenshot flag without a stored file is still uploading: skipped.
		{Id: uuid.New(), SenderId: &sender, IsScreenshot: true, SequenceNumber: 4},
		shot(0, "pending.png", "not yet confirmed"),
	}

	items := DeriveScreenshots(msgs, func(name string) string { return "https://cdn.example/" + name })
	require.Len(t, items, 3)
	assert.Equal(t, "a.png", items[0].FileName)
	assert.Equal(t, "b.png", items[1].FileName)
	// Pending screenshots trail the confirmed ones.
	assert.Equal(t, "pending.png", items[2].FileName)
	assert.Equal(t, "https://cdn.example/a.png", items[0].URL)
	assert.Equal(t, "first", items[0].Caption)
	assert.Equal(t, "DS", items[0].SenderInitials)
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "DS", initials("dana scully"))
	assert.Equal(t, "F", initials("Fox"))
	assert.Equal(t, "AB", initials("Ada B. Lovelace"))
	assert.Equal(t, "?", initials("   "))
	assert.Equal(t, "Æ", initials("æon"))
}

func TestViewerNavigationClampsAtBounds(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	handlers := s.Handlers()
	for i, file := range []string{"a.png", "b.png", "c.png"} {
		m := serverMsg(s.RequestId(), int64(i+1), "cap")
		m.IsScreenshot = true
		m.ScreenshotFileName = file
		handlers.OnConfirmed(m)
	}

	_, open := s.ViewerIndex()
	assert.False(t, open)

	s.OpenViewer(1)
	idx, open := s.ViewerIndex()
	require.True(t, open)
	assert.Equal(t, 1, idx)

	s.ViewerNext()
	idx, _ = s.ViewerIndex()
	assert.Equal(t, 2, idx)

	// No wraparound at the end.
	s.ViewerNext()
	idx, _ = s.ViewerIndex()
	assert.Equal(t, 2, idx)

	s.ViewerPrev()
	s.ViewerPrev()
	s.ViewerPrev()
	idx, _ = s.ViewerIndex()
	assert.Equal(t, 0, idx)

	s.CloseViewer()
	_, open = s.ViewerIndex()
	assert.False(t, open)
}

func TestOpenViewerClampsInitialIndex(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	m := serverMsg(s.RequestId(), 1, "cap")
	m.IsScreenshot = true
	m.ScreenshotFileName = "only.png"
	s.Handlers().OnConfirmed(m)

	s.OpenViewer(99)
	idx, open := s.ViewerIndex()
	require.True(t, open)
	assert.Equal(t, 0, idx)
}

func TestOpenViewerWithoutScreenshotsStaysClosed(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	s.OpenViewer(0)
	_, open := s.ViewerIndex()
	assert.False(t, open)
}
