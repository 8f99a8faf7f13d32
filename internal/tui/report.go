package tui

import (
	"fmt"
	"sort"
	"strings"
)

// StepLine renders one finished step for plain (non-interactive) output.
func (s *StyleSet) StepLine(index, total int, step string, err error) string {
	pos := fmt.Sprintf("%d/%d", index+1, total)
	if err != nil {
		return s.StepBadgeFailed.Render(pos) + " " + s.ErrorTxt.Render(step) + " " + s.DimTxt.Render(err.Error())
	}
	return s.StepBadgeComplete.Render(pos) + " " + s.PrimaryTxt.Render(step)
}

// Properties renders the bag contents as a bordered key/value box.
func (s *StyleSet) Properties(props map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.SummaryKey.Render(k))
		b.WriteString(s.SummaryValue.Render(fmt.Sprint(props[k])))
	}
	return s.BorderedBox.Render(b.String())
}
