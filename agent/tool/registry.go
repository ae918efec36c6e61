// Package tool declares the closed set of operations the model may call and
// binds each to a local handler over one conversation's order state. Tool
// names and schemas are the literal contract exposed to the model and stay
// stable for the lifetime of a conversation.
package tool

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
	menux "github.com/hanbit-dev/kiosk-agent/agent/menu"
	orderx "github.com/hanbit-dev/kiosk-agent/agent/order"
	validatex "github.com/hanbit-dev/kiosk-agent/agent/validate"
)

const (
	ToolListMenu       = "list_menu"
	ToolSearchMenu     = "search_menu"
	ToolAddItem        = "add_item"
	ToolRemoveItem     = "remove_item"
	ToolAdjustOptions  = "adjust_options"
	ToolGetOrder       = "get_order"
	ToolConfirmOrder   = "confirm_order"
	ToolCancelOrder    = "cancel_order"
	ToolSpecialRequest = "add_special_request"
)

type handler func(ctx context.Context, args map[string]any) (any, error)

// Registry binds the tool contract to one conversation's order. It never
// talks to the model; the dialogue loop is the only caller.
type Registry struct {
	catalog  *menux.Catalog
	order    *orderx.Order
	handlers map[string]handler
}

func NewRegistry(catalog *menux.Catalog, order *orderx.Order) *Registry {
	r := &Registry{catalog: catalog, order: order}
	r.handlers = map[string]handler{
		ToolListMenu:       r.listMenu,
		ToolSearchMenu:     r.searchMenu,
		ToolAddItem:        r.addItem,
		ToolRemoveItem:     r.removeItem,
		ToolAdjustOptions:  r.adjustOptions,
		ToolGetOrder:       r.getOrder,
		ToolConfirmOrder:   r.confirmOrder,
		ToolCancelOrder:    r.cancelOrder,
		ToolSpecialRequest: r.specialRequest,
	}
	return r
}

// Bind points the registry at a new order, used when the customer restarts
// the order mid-conversation.
func (r *Registry) Bind(order *orderx.Order) {
	if order != nil {
		r.order = order
	}
}

// Execute runs one validated tool call. Unknown tool names fail closed and
// are reported back to the model as a tool error, never executed and never
// silently ignored. Errors from validation or mutation become structured
// tool-error results; Execute itself never fails the loop.
func (r *Registry) Execute(ctx context.Context, call contractx.ToolCallRequest) contractx.ToolCallResult {
	h, ok := r.handlers[call.Name]
	if !ok {
		err := fmt.Errorf("%w: %q", contractx.ErrUnsupportedTool, call.Name)
		return errorResult(call, err)
	}

	payload, err := h(ctx, call.Args)
	if err != nil {
		return errorResult(call, err)
	}
	return contractx.ToolCallResult{ID: call.ID, Name: call.Name, OK: true, Payload: payload}
}

type menuListOutput struct {
	Items []menux.Item `json:"items"`
	Count int          `json:"count"`
}

type lineOutput struct {
	Line      orderx.Line `json:"line"`
	ItemCount int         `json:"item_count"`
	Total     int64       `json:"total"`
	Message   string      `json:"message"`
}

type orderOutput struct {
	Order   orderx.Snapshot `json:"order"`
	Summary string          `json:"summary,omitempty"`
	Message string          `json:"message"`
}

func (r *Registry) listMenu(_ context.Context, args map[string]any) (any, error) {
	parsed, err := validatex.ListMenu(args)
	if err != nil {
		return nil, err
	}
	items := r.catalog.List(parsed.Category)
	return menuListOutput{Items: items, Count: len(items)}, nil
}

func (r *Registry) searchMenu(_ context.Context, args map[string]any) (any, error) {
	parsed, err := validatex.SearchMenu(args)
	if err != nil {
		return nil, err
	}
	items := r.catalog.Search(parsed.Query)
	return menuListOutput{Items: items, Count: len(items)}, nil
}

func (r *Registry) addItem(_ context.Context, args map[string]any) (any, error) {
	parsed, err := validatex.AddItem(args, r.catalog, r.order.Snapshot())
	if err != nil {
		return nil, err
	}
	line, err := r.order.AddItem(parsed.MenuID, parsed.Quantity, parsed.Options)
	if err != nil {
		return nil, err
	}
	snap := r.order.Snapshot()
	return lineOutput{
		Line:      line,
		ItemCount: snap.ItemCount,
		Total:     snap.Total,
		Message:   fmt.Sprintf("%s %d개가 추가되었습니다.", line.Name, parsed.Quantity),
	}, nil
}

func (r *Registry) removeItem(_ context.Context, args map[string]any) (any, error) {
	parsed, err := validatex.RemoveItem(args, r.order.Snapshot())
	if err != nil {
		return nil, err
	}
	if err := r.order.RemoveItem(parsed.ItemRef, parsed.Quantity); err != nil {
		return nil, err
	}
	snap := r.order.Snapshot()
	return orderOutput{Order: snap, Message: "주문에서 제거되었습니다."}, nil
}

func (r *Registry) adjustOptions(_ context.Context, args map[string]any) (any, error) {
	parsed, err := validatex.AdjustOptions(args, r.catalog, r.order.Snapshot())
	if err != nil {
		return nil, err
	}
	if err := r.order.AdjustOptions(parsed.ItemRef, parsed.Options); err != nil {
		return nil, err
	}
	snap := r.order.Snapshot()
	return orderOutput{Order: snap, Message: "옵션이 변경되었습니다."}, nil
}

func (r *Registry) getOrder(_ context.Context, _ map[string]any) (any, error) {
	snap := r.order.Snapshot()
	if len(snap.Lines) == 0 {
		return orderOutput{Order: snap, Message: "현재 주문이 비어있습니다."}, nil
	}
	return orderOutput{Order: snap, Summary: orderx.FormatSummary(snap), Message: "현재 주문 내역입니다."}, nil
}

func (r *Registry) confirmOrder(_ context.Context, _ map[string]any) (any, error) {
	if err := validatex.Confirm(r.order.Snapshot()); err != nil {
		return nil, err
	}
	if err := r.order.Confirm(); err != nil {
		return nil, err
	}
	snap := r.order.Snapshot()
	return orderOutput{Order: snap, Summary: orderx.FormatSummary(snap), Message: "주문이 확정되었습니다."}, nil
}

func (r *Registry) cancelOrder(_ context.Context, _ map[string]any) (any, error) {
	r.order.Cancel()
	return orderOutput{Order: r.order.Snapshot(), Message: "주문이 취소되었습니다."}, nil
}

func (r *Registry) specialRequest(_ context.Context, args map[string]any) (any, error) {
	parsed, err := validatex.SpecialRequest(args, r.order.Snapshot())
	if err != nil {
		return nil, err
	}
	if err := r.order.SetSpecialRequest(parsed.Request); err != nil {
		return nil, err
	}
	return orderOutput{
		Order:   r.order.Snapshot(),
		Message: fmt.Sprintf("요청사항이 추가되었습니다: %s", parsed.Request),
	}, nil
}

func errorResult(call contractx.ToolCallRequest, err error) contractx.ToolCallResult {
	return contractx.ToolCallResult{
		ID:        call.ID,
		Name:      call.Name,
		ErrorKind: kindOf(err),
		Error:     err.Error(),
	}
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, contractx.ErrUnsupportedTool):
		return "unsupported_tool"
	case errors.Is(err, contractx.ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, contractx.ErrUnknownMenuItem):
		return "unknown_menu_item"
	case errors.Is(err, contractx.ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, contractx.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, contractx.ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, contractx.ErrEmptyOrder):
		return "empty_order"
	case errors.Is(err, contractx.ErrInvalidState):
		return "invalid_state"
	default:
		return "validation"
	}
}
