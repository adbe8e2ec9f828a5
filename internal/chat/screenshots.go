package chat

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/entity"
)

// ScreenshotItem is projected from the message list for the media viewer.
// Recomputed on every read, never mutated in place.
type ScreenshotItem struct {
	MessageId      uuid.UUID
	FileName       string
	URL            string
	SenderName     string
	SenderInitials string
	Caption        string
	SequenceNumber int64
	CreatedAt      time.Time
}

// DeriveScreenshots filters the screenshot messages and sorts them by
// sequence number. Pending screenshots (no sequence yet) sort after all
// confirmed ones.
func DeriveScreenshots(msgs []*entity.ChatMessage, urlFor func(fileName string) string) []ScreenshotItem {
	if urlFor == nil {
		urlFor = func(name string) string { return name }
	}
	var items []ScreenshotItem
	for _, m := range msgs {
		if !m.IsScreenshot || m.ScreenshotFileName == "" {
			continue
		}
		items = append(items, ScreenshotItem{
			MessageId:      m.Key(),
			FileName:       m.ScreenshotFileName,
			URL:            urlFor(m.ScreenshotFileName),
			SenderName:     m.SenderName,
			SenderInitials: initials(m.SenderName),
			Caption:        m.Content,
			SequenceNumber: m.SequenceNumber,
			CreatedAt:      m.CreatedAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].SequenceNumber, items[j].SequenceNumber
		if a == 0 || b == 0 {
			return a != 0 && b == 0
		}
		return a < b
	})
	return items
}

func initials(name string) string {
	fields := strings.Fields(name)
	var sb strings.Builder
	for i, f := range fields {
		if i >= 2 {
			break
		}
		r := []rune(f)
		sb.WriteString(strings.ToUpper(string(r[0])))
	}
	if sb.Len() == 0 {
		return "?"
	}
	return sb.String()
}

// Screenshots recomputes the projection from the current message list.
func (s *Session) Screenshots() []ScreenshotItem {
	return DeriveScreenshots(s.Messages(), s.urlFor)
}

// Media viewer state. Index navigation clamps at the bounds, no wraparound.

type viewerState struct {
	open  bool
	index int
}

func (s *Session) OpenViewer(index int) {
	items := s.Screenshots()
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewer.open = true
	s.viewer.index = clamp(index, 0, len(items)-1)
}

func (s *Session) CloseViewer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewer = viewerState{}
}

func (s *Session) ViewerNext() {
	items := s.Screenshots()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.viewer.open {
		return
	}
	s.viewer.index = clamp(s.viewer.index+1, 0, len(items)-1)
}

func (s *Session) ViewerPrev() {
	items := s.Screenshots()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.viewer.open {
		return
	}
	s.viewer.index = clamp(s.viewer.index-1, 0, len(items)-1)
}

// ViewerIndex returns the current position; ok is false while closed.
func (s *Session) ViewerIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewer.index, s.viewer.open
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
