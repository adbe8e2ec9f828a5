package viewport

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-chat-core/internal/entity"
)

func textMsg(content string) *entity.ChatMessage {
	sender := uuid.New()
	return &entity.ChatMessage{Id: uuid.New(), SenderId: &sender, Content: content}
}

func TestEstimateHeightOrdering(t *testing.T) {
	system := &entity.ChatMessage{Id: uuid.New(), Content: "STATUS_CHANGED|Solved"}
	sender := uuid.New()
	file := &entity.ChatMessage{Id: uuid.New(), SenderId: &sender, FileName: "log.txt"}
	text := textMsg("short")
	withCaption := &entity.ChatMessage{Id: uuid.New(), SenderId: &sender, IsScreenshot: true, ScreenshotFileName: "s.png", Content: "see this"}
	imageOnly := &entity.ChatMessage{Id: uuid.New(), SenderId: &sender, IsScreenshot: true, ScreenshotFileName: "s.png"}

	assert.Less(t, EstimateHeight(system), EstimateHeight(file))
	assert.Less(t, EstimateHeight(file), EstimateHeight(text))
	assert.Less(t, EstimateHeight(text), EstimateHeight(withCaption))
	assert.Less(t, EstimateHeight(withCaption), EstimateHeight(imageOnly))
}

func TestEstimateHeightGrowsPerLine(t *testing.T) {
	short := EstimateHeight(textMsg("hi"))
	two := EstimateHeight(textMsg(strings.Repeat("x", 60)))
	four := EstimateHeight(textMsg(strings.Repeat("x", 160)))

	assert.Equal(t, short+heightLine, two)
	assert.Equal(t, short+3*heightLine, four)
}

func TestWindowWithOverscan(t *testing.T) {
	msgs := make([]*entity.ChatMessage, 10)
	for i := range msgs {
		msgs[i] = textMsg("row")
	}
	l := NewLayout(msgs)
	rowHeight := EstimateHeight(msgs[0])

	// Viewport shows rows 2-4 (three rows tall, scrolled past two).
	first, last := l.Window(2*rowHeight, 3*rowHeight, 0)
	assert.Equal(t, 2, first)
	assert.Equal(t, 4, last)

	first, last = l.Window(2*rowHeight, 3*rowHeight, 2)
	assert.Equal(t, 0, first)
	assert.Equal(t, 6, last)
}

func TestWindowClampsAtBounds(t *testing.T) {
	l := NewLayout([]*entity.ChatMessage{textMsg("only")})
	first, last := l.Window(0, 10000, 5)
	assert.Equal(t, 0, first)
	assert.Equal(t, 0, last)

	empty := NewLayout(nil)
	first, last = empty.Window(0, 100, 3)
	assert.Equal(t, 0, first)
	assert.Equal(t, -1, last)
}

func TestMeasureAboveViewportShiftsOffset(t *testing.T) {
	msgs := []*entity.ChatMessage{textMsg("a"), textMsg("b"), textMsg("c")}
	l := NewLayout(msgs)
	rowHeight := EstimateHeight(msgs[0])

	// Scrolled past the first two rows; row 0 measures 30px taller.
	offset := l.Measure(0, rowHeight+30, 2*rowHeight)
	assert.Equal(t, 2*rowHeight+30, offset)
	assert.Equal(t, rowHeight+30, l.HeightAt(0))
}

func TestMeasureVisibleRowKeepsOffset(t *testing.T) {
	msgs := []*entity.ChatMessage{textMsg("a"), textMsg("b"), textMsg("c")}
	l := NewLayout(msgs)
	rowHeight := EstimateHeight(msgs[0])

	offset := l.Measure(2, rowHeight+40, rowHeight/2)
	assert.Equal(t, rowHeight/2, offset)
}

func TestPrependReturnsAddedHeight(t *testing.T) {
	l := NewLayout([]*entity.ChatMessage{textMsg("existing")})
	older := []*entity.ChatMessage{textMsg("old1"), textMsg("old2")}

	added := l.Prepend(older...)
	require.Equal(t, 3, l.Count())
	assert.Equal(t, EstimateHeight(older[0])+EstimateHeight(older[1]), added)
	assert.Equal(t, added, l.OffsetOf(2))
}
