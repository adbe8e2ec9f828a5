package viewport

import (
	"helpdesk-chat-core/internal/entity"
)

// Layout tracks per-row heights (estimates until measured) and answers
// window queries over the cumulative offsets.
type Layout struct {
	heights  []float64
	measured []bool
}

func NewLayout(msgs []*entity.ChatMessage) *Layout {
	l := &Layout{}
	l.Reset(msgs)
	return l
}

// Reset rebuilds estimates for a new message list, keeping nothing.
func (l *Layout) Reset(msgs []*entity.ChatMessage) {
	l.heights = make([]float64, len(msgs))
	l.measured = make([]bool, len(msgs))
	for i, m := range msgs {
		l.heights[i] = EstimateHeight(m)
	}
}

// Append adds estimate rows for messages appended to the list.
func (l *Layout) Append(msgs ...*entity.ChatMessage) {
	for _, m := range msgs {
		l.heights = append(l.heights, EstimateHeight(m))
		l.measured = append(l.measured, false)
	}
}

// Prepend inserts estimate rows for backfilled history at the top and
// returns the added height, which callers add to the scroll offset so the
// view doesn't jump.
func (l *Layout) Prepend(msgs ...*entity.ChatMessage) float64 {
	added := 0.0
	heights := make([]float64, len(msgs), len(msgs)+len(l.heights))
	for i, m := range msgs {
		heights[i] = EstimateHeight(m)
		added += heights[i]
	}
	l.heights = append(heights, l.heights...)
	l.measured = append(make([]bool, len(msgs)), l.measured...)
	return added
}

func (l *Layout) Count() int {
	return len(l.heights)
}

func (l *Layout) HeightAt(i int) float64 {
	return l.heights[i]
}

func (l *Layout) TotalHeight() float64 {
	total := 0.0
	for _, h := range l.heights {
		total += h
	}
	return total
}

// OffsetOf is the top position of row i.
func (l *Layout) OffsetOf(i int) float64 {
	offset := 0.0
	for j := 0; j < i && j < len(l.heights); j++ {
		offset += l.heights[j]
	}
	return offset
}

// Measure replaces row i's estimate with the rendered height and returns the
// corrected scroll offset: rows entirely above the viewport shift the offset
// by the delta so visible content stays put.
func (l *Layout) Measure(i int, height, scrollOffset float64) float64 {
	if i < 0 || i >= len(l.heights) {
		return scrollOffset
	}
	delta := height - l.heights[i]
	top := l.OffsetOf(i)
	l.heights[i] = height
	l.measured[i] = true
	if delta == 0 {
		return scrollOffset
	}
	if top+height <= scrollOffset+delta || top < scrollOffset {
		return scrollOffset + delta
	}
	return scrollOffset
}

// Window returns the inclusive row range [first, last] visible at the given
// scroll offset, widened by overscan rows on both sides. Empty layouts
// return (0, -1).
func (l *Layout) Window(scrollOffset, viewportHeight float64, overscan int) (int, int) {
	if len(l.heights) == 0 {
		return 0, -1
	}

	first := 0
	last := len(l.heights) - 1
	top := 0.0
	foundFirst := false
	for i, h := range l.heights {
		bottom := top + h
		if !foundFirst && bottom > scrollOffset {
			first = i
			foundFirst = true
		}
		if top >= scrollOffset+viewportHeight {
			last = i - 1
			break
		}
		top = bottom
	}

	first -= overscan
	last += overscan
	if first < 0 {
		first = 0
	}
	if last > len(l.heights)-1 {
		last = len(l.heights) - 1
	}
	return first, last
}
