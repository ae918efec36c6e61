package order

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var wonPrinter = message.NewPrinter(language.Korean)

// Won renders an amount with thousands grouping, e.g. 12,400원.
func Won(amount int64) string {
	return wonPrinter.Sprintf("%d원", amount)
}

// FormatSummary renders the structured order summary shown after every
// mutating turn: lines, options, quantities, and the recomputed total.
func FormatSummary(snap Snapshot) string {
	if len(snap.Lines) == 0 {
		return "현재 주문이 비어있습니다."
	}

	var b strings.Builder
	b.WriteString("주문번호: " + snap.ID + "\n")
	for _, line := range snap.Lines {
		b.WriteString(wonPrinter.Sprintf("- %s x %d", line.Name, line.Quantity))
		b.WriteString("\n")
		if len(line.Options) > 0 {
			labels := make([]string, 0, len(line.Options))
			for _, opt := range line.Options {
				labels = append(labels, opt.Label)
			}
			b.WriteString("  옵션: " + strings.Join(labels, ", ") + "\n")
		}
		b.WriteString("  " + Won(line.Subtotal()) + "\n")
	}
	if snap.SpecialRequest != "" {
		b.WriteString("요청사항: " + snap.SpecialRequest + "\n")
	}
	b.WriteString(wonPrinter.Sprintf("총 수량: %d개\n", snap.ItemCount))
	b.WriteString("총 금액: " + Won(snap.Total))
	return b.String()
}
