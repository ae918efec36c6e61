// Package validate gates tool-call arguments before they touch order state.
// Every function is pure over (raw args, catalog, order snapshot): it returns
// either typed arguments or a structured rejection that the dialogue loop
// routes back into the conversation as a tool error.
package validate

import (
	"fmt"
	"strings"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
	menux "github.com/hanbit-dev/kiosk-agent/agent/menu"
	orderx "github.com/hanbit-dev/kiosk-agent/agent/order"
)

const (
	maxInputLength   = 500
	maxRequestLength = 200
)

type AddItemArgs struct {
	MenuID   string
	Quantity int
	Options  []string
}

type RemoveItemArgs struct {
	ItemRef  string
	Quantity int
}

type AdjustOptionsArgs struct {
	ItemRef string
	Options []string
}

type ListMenuArgs struct {
	Category string
}

type SearchMenuArgs struct {
	Query string
}

type SpecialRequestArgs struct {
	Request string
}

// AddItem resolves the menu reference (ID first, then name fragment — the
// model frequently passes names), checks the quantity range, and verifies
// every option against the resolved item's allowed set.
func AddItem(args map[string]any, catalog *menux.Catalog, snap orderx.Snapshot) (AddItemArgs, error) {
	if err := mutable(snap); err != nil {
		return AddItemArgs{}, err
	}

	ref, err := requiredString(args, "menu_id")
	if err != nil {
		return AddItemArgs{}, err
	}

	item, ok := catalog.GetByID(ref)
	if !ok {
		item, ok = catalog.GetByName(ref)
	}
	if !ok {
		return AddItemArgs{}, fmt.Errorf("%w: %q", contractx.ErrUnknownMenuItem, ref)
	}
	if !item.Available {
		return AddItemArgs{}, fmt.Errorf("%w: %s은(는) 품절입니다", contractx.ErrUnknownMenuItem, item.Name)
	}

	quantity, err := optionalInt(args, "quantity", 1)
	if err != nil {
		return AddItemArgs{}, err
	}
	if quantity < 1 || quantity > orderx.MaxQuantity {
		return AddItemArgs{}, fmt.Errorf("%w: quantity=%d", contractx.ErrInvalidQuantity, quantity)
	}

	options, err := optionalStringSlice(args, "options")
	if err != nil {
		return AddItemArgs{}, err
	}
	for _, id := range options {
		if _, ok := item.Option(id); !ok {
			return AddItemArgs{}, fmt.Errorf("%w: option=%q menu=%s", contractx.ErrInvalidOption, id, item.ID)
		}
	}

	return AddItemArgs{MenuID: item.ID, Quantity: quantity, Options: options}, nil
}

// RemoveItem checks that item_ref resolves to a current line. A missing
// quantity means the whole line.
func RemoveItem(args map[string]any, snap orderx.Snapshot) (RemoveItemArgs, error) {
	if err := mutable(snap); err != nil {
		return RemoveItemArgs{}, err
	}

	ref, err := requiredString(args, "item_ref")
	if err != nil {
		return RemoveItemArgs{}, err
	}
	if !lineExists(snap, ref) {
		return RemoveItemArgs{}, fmt.Errorf("%w: item_ref=%q", contractx.ErrItemNotFound, ref)
	}

	quantity, err := optionalInt(args, "quantity", 0)
	if err != nil {
		return RemoveItemArgs{}, err
	}
	// no upper bound: removing more than the held quantity removes the line
	if quantity < 0 {
		return RemoveItemArgs{}, fmt.Errorf("%w: quantity=%d", contractx.ErrInvalidQuantity, quantity)
	}

	return RemoveItemArgs{ItemRef: ref, Quantity: quantity}, nil
}

// AdjustOptions checks the line exists and the replacement options belong to
// the line's menu item.
func AdjustOptions(args map[string]any, catalog *menux.Catalog, snap orderx.Snapshot) (AdjustOptionsArgs, error) {
	if err := mutable(snap); err != nil {
		return AdjustOptionsArgs{}, err
	}

	ref, err := requiredString(args, "item_ref")
	if err != nil {
		return AdjustOptionsArgs{}, err
	}

	var line orderx.Line
	found := false
	for _, l := range snap.Lines {
		if matchesLine(l, ref) {
			line = l
			found = true
			break
		}
	}
	if !found {
		return AdjustOptionsArgs{}, fmt.Errorf("%w: item_ref=%q", contractx.ErrItemNotFound, ref)
	}

	options, err := optionalStringSlice(args, "options")
	if err != nil {
		return AdjustOptionsArgs{}, err
	}
	item, ok := catalog.GetByID(line.MenuID)
	if !ok {
		return AdjustOptionsArgs{}, fmt.Errorf("%w: menu_id=%s", contractx.ErrUnknownMenuItem, line.MenuID)
	}
	for _, id := range options {
		if _, ok := item.Option(id); !ok {
			return AdjustOptionsArgs{}, fmt.Errorf("%w: option=%q menu=%s", contractx.ErrInvalidOption, id, item.ID)
		}
	}

	return AdjustOptionsArgs{ItemRef: ref, Options: options}, nil
}

func ListMenu(args map[string]any) (ListMenuArgs, error) {
	category, err := optionalString(args, "category")
	if err != nil {
		return ListMenuArgs{}, err
	}
	return ListMenuArgs{Category: category}, nil
}

func SearchMenu(args map[string]any) (SearchMenuArgs, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return SearchMenuArgs{}, err
	}
	return SearchMenuArgs{Query: query}, nil
}

func SpecialRequest(args map[string]any, snap orderx.Snapshot) (SpecialRequestArgs, error) {
	if err := mutable(snap); err != nil {
		return SpecialRequestArgs{}, err
	}
	request, err := requiredString(args, "request")
	if err != nil {
		return SpecialRequestArgs{}, err
	}
	if len([]rune(request)) > maxRequestLength {
		return SpecialRequestArgs{}, fmt.Errorf("%w: request is too long", contractx.ErrValidation)
	}
	return SpecialRequestArgs{Request: request}, nil
}

// Confirm rejects confirming an empty or closed order before the mutator runs.
func Confirm(snap orderx.Snapshot) error {
	if snap.Status != orderx.StatusOpen {
		return fmt.Errorf("%w: order is %s", contractx.ErrInvalidState, snap.Status)
	}
	if len(snap.Lines) == 0 {
		return contractx.ErrEmptyOrder
	}
	return nil
}

// UserInput screens raw customer text before it enters the transcript.
func UserInput(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("%w: input is empty", contractx.ErrValidation)
	}
	if len([]rune(trimmed)) > maxInputLength {
		return fmt.Errorf("%w: input is too long", contractx.ErrValidation)
	}
	lowered := strings.ToLower(trimmed)
	for _, marker := range []string{"<script>", "javascript:", "onerror="} {
		if strings.Contains(lowered, marker) {
			return fmt.Errorf("%w: input contains disallowed content", contractx.ErrValidation)
		}
	}
	return nil
}

func mutable(snap orderx.Snapshot) error {
	if snap.Status != orderx.StatusOpen {
		return fmt.Errorf("%w: order is %s", contractx.ErrInvalidState, snap.Status)
	}
	return nil
}

func lineExists(snap orderx.Snapshot, ref string) bool {
	for _, l := range snap.Lines {
		if matchesLine(l, ref) {
			return true
		}
	}
	return false
}

func matchesLine(l orderx.Line, ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	if l.MenuID == ref {
		return true
	}
	return strings.Contains(strings.ToLower(l.Name), strings.ToLower(ref))
}

/* ------------------------------ arg helpers ------------------------------ */

func requiredString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", contractx.ErrSchemaViolation, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", contractx.ErrSchemaViolation, key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %s is empty", contractx.ErrSchemaViolation, key)
	}
	return s, nil
}

func optionalString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", contractx.ErrSchemaViolation, key)
	}
	return strings.TrimSpace(s), nil
}

// optionalInt accepts JSON numbers (float64) and rejects fractions.
func optionalInt(args map[string]any, key string, fallback int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %s must be an integer", contractx.ErrSchemaViolation, key)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", contractx.ErrSchemaViolation, key)
	}
}

func optionalStringSlice(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		if typed, ok := raw.([]string); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("%w: %s must be an array of strings", contractx.ErrSchemaViolation, key)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must contain only strings", contractx.ErrSchemaViolation, key)
		}
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
