package order

import (
	"fmt"
	"sort"
	"strings"
	"time"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
	menux "github.com/hanbit-dev/kiosk-agent/agent/menu"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// SelectedOption is an option resolved against the referenced menu item, with
// its surcharge captured so the line subtotal is derivable from the line alone.
type SelectedOption struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Surcharge int64  `json:"surcharge"`
}

// Line is one order entry. Quantity is always >= 1; zero-quantity lines are
// pruned, never retained.
type Line struct {
	MenuID    string           `json:"menu_id"`
	Name      string           `json:"name"`
	UnitPrice int64            `json:"unit_price"`
	Quantity  int              `json:"quantity"`
	Options   []SelectedOption `json:"options,omitempty"`
}

// Subtotal is unit price x quantity plus the option surcharges of the line.
func (l Line) Subtotal() int64 {
	total := l.UnitPrice * int64(l.Quantity)
	for _, opt := range l.Options {
		total += opt.Surcharge
	}
	return total
}

func (l Line) optionKey() string {
	ids := make([]string, 0, len(l.Options))
	for _, opt := range l.Options {
		ids = append(ids, opt.ID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// Snapshot is a read-only view of the order. The total is recomputed from the
// current lines on every call, never cached.
type Snapshot struct {
	ID             string `json:"order_id"`
	Status         Status `json:"status"`
	Lines          []Line `json:"lines"`
	SpecialRequest string `json:"special_request,omitempty"`
	ItemCount      int    `json:"item_count"`
	Total          int64  `json:"total"`
}

// Order is one customer's in-progress order. Mutators are all-or-nothing with
// respect to a single tool invocation: either the full change applies or the
// order is left untouched.
type Order struct {
	id      string
	catalog *menux.Catalog
	lines   []Line
	status  Status
	special string
}

const MaxQuantity = 99

func New(catalog *menux.Catalog, now time.Time) *Order {
	return &Order{
		id:      fmt.Sprintf("ORD-%s-%X", now.Format("20060102"), now.UnixNano()&0xFFFFFF),
		catalog: catalog,
		status:  StatusOpen,
	}
}

func (o *Order) ID() string     { return o.id }
func (o *Order) Status() Status { return o.status }

// AddItem appends quantity of the menu item with the given options, merging
// into an existing line when menu ID and option set match.
func (o *Order) AddItem(menuID string, quantity int, optionIDs []string) (Line, error) {
	if o.status != StatusOpen {
		return Line{}, fmt.Errorf("%w: order is %s", contractx.ErrInvalidState, o.status)
	}
	if quantity < 1 || quantity > MaxQuantity {
		return Line{}, fmt.Errorf("%w: quantity=%d", contractx.ErrInvalidQuantity, quantity)
	}

	item, ok := o.catalog.GetByID(menuID)
	if !ok {
		return Line{}, fmt.Errorf("%w: menu_id=%s", contractx.ErrUnknownMenuItem, menuID)
	}
	if !item.Available {
		return Line{}, fmt.Errorf("%w: %s은(는) 품절입니다", contractx.ErrUnknownMenuItem, item.Name)
	}

	selected, err := resolveOptions(item, optionIDs)
	if err != nil {
		return Line{}, err
	}

	line := Line{
		MenuID:    item.ID,
		Name:      item.Name,
		UnitPrice: item.Price,
		Quantity:  quantity,
		Options:   selected,
	}

	for i := range o.lines {
		if o.lines[i].MenuID == line.MenuID && o.lines[i].optionKey() == line.optionKey() {
			if o.lines[i].Quantity+quantity > MaxQuantity {
				return Line{}, fmt.Errorf("%w: quantity exceeds %d", contractx.ErrInvalidQuantity, MaxQuantity)
			}
			o.lines[i].Quantity += quantity
			return o.lines[i], nil
		}
	}

	o.lines = append(o.lines, line)
	return line, nil
}

// RemoveItem decrements quantity of the line matching itemRef. A quantity of
// zero, or one at or above the held quantity, removes the line entirely; the
// quantity never goes negative.
func (o *Order) RemoveItem(itemRef string, quantity int) error {
	if o.status != StatusOpen {
		return fmt.Errorf("%w: order is %s", contractx.ErrInvalidState, o.status)
	}
	if quantity < 0 {
		return fmt.Errorf("%w: quantity=%d", contractx.ErrInvalidQuantity, quantity)
	}

	idx := o.findLine(itemRef)
	if idx < 0 {
		return fmt.Errorf("%w: item_ref=%s", contractx.ErrItemNotFound, itemRef)
	}

	if quantity == 0 || quantity >= o.lines[idx].Quantity {
		o.lines = append(o.lines[:idx], o.lines[idx+1:]...)
		return nil
	}
	o.lines[idx].Quantity -= quantity
	return nil
}

// AdjustOptions replaces the option set of the line matching itemRef.
func (o *Order) AdjustOptions(itemRef string, optionIDs []string) error {
	if o.status != StatusOpen {
		return fmt.Errorf("%w: order is %s", contractx.ErrInvalidState, o.status)
	}

	idx := o.findLine(itemRef)
	if idx < 0 {
		return fmt.Errorf("%w: item_ref=%s", contractx.ErrItemNotFound, itemRef)
	}

	item, ok := o.catalog.GetByID(o.lines[idx].MenuID)
	if !ok {
		return fmt.Errorf("%w: menu_id=%s", contractx.ErrUnknownMenuItem, o.lines[idx].MenuID)
	}

	selected, err := resolveOptions(item, optionIDs)
	if err != nil {
		return err
	}
	o.lines[idx].Options = selected
	return nil
}

// SetSpecialRequest records a free-form kitchen note on the open order.
func (o *Order) SetSpecialRequest(request string) error {
	if o.status != StatusOpen {
		return fmt.Errorf("%w: order is %s", contractx.ErrInvalidState, o.status)
	}
	o.special = strings.TrimSpace(request)
	return nil
}

// Confirm is the single transition to CONFIRMED and is irreversible.
func (o *Order) Confirm() error {
	if o.status != StatusOpen {
		return fmt.Errorf("%w: order is %s", contractx.ErrInvalidState, o.status)
	}
	if len(o.lines) == 0 {
		return contractx.ErrEmptyOrder
	}
	o.status = StatusConfirmed
	return nil
}

// Cancel clears the items and closes the order. Calling it on an already
// terminal order is a no-op.
func (o *Order) Cancel() {
	if o.status != StatusOpen {
		return
	}
	o.lines = nil
	o.status = StatusCancelled
}

// Snapshot returns a read-only copy with the total recomputed from the lines.
func (o *Order) Snapshot() Snapshot {
	lines := make([]Line, len(o.lines))
	copy(lines, o.lines)
	for i := range lines {
		opts := make([]SelectedOption, len(o.lines[i].Options))
		copy(opts, o.lines[i].Options)
		lines[i].Options = opts
	}

	var total int64
	count := 0
	for _, l := range lines {
		total += l.Subtotal()
		count += l.Quantity
	}

	return Snapshot{
		ID:             o.id,
		Status:         o.status,
		Lines:          lines,
		SpecialRequest: o.special,
		ItemCount:      count,
		Total:          total,
	}
}

// findLine resolves an item reference to a line index: exact menu ID first,
// then case-insensitive name fragment, matching how the model refers to items.
func (o *Order) findLine(itemRef string) int {
	ref := strings.TrimSpace(itemRef)
	if ref == "" {
		return -1
	}
	for i := range o.lines {
		if o.lines[i].MenuID == ref {
			return i
		}
	}
	needle := strings.ToLower(ref)
	for i := range o.lines {
		if strings.Contains(strings.ToLower(o.lines[i].Name), needle) {
			return i
		}
	}
	return -1
}

func resolveOptions(item menux.Item, optionIDs []string) ([]SelectedOption, error) {
	if len(optionIDs) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(optionIDs))
	selected := make([]SelectedOption, 0, len(optionIDs))
	for _, id := range optionIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		opt, ok := item.Option(id)
		if !ok {
			return nil, fmt.Errorf("%w: option=%s menu=%s", contractx.ErrInvalidOption, id, item.ID)
		}
		seen[id] = struct{}{}
		selected = append(selected, SelectedOption{ID: opt.ID, Label: opt.Label, Surcharge: opt.Surcharge})
	}
	if len(selected) == 0 {
		return nil, nil
	}
	return selected, nil
}
