package tool

import contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"

// Schemas declares the model-facing tool contract. The llm adapter serializes
// these verbatim on every request cycle.
func Schemas() []contractx.ToolSchema {
	return []contractx.ToolSchema{
		{
			Name:        ToolListMenu,
			Description: "메뉴를 조회합니다. category를 주면 해당 카테고리만 반환합니다.",
			Parameters: objectSchema(map[string]any{
				"category": map[string]any{
					"type":        "string",
					"enum":        []string{"burger", "side", "drink", "dessert"},
					"description": "메뉴 카테고리 (burger: 버거, side: 사이드, drink: 음료, dessert: 디저트)",
				},
			}),
		},
		{
			Name:        ToolSearchMenu,
			Description: "키워드로 메뉴를 검색합니다.",
			Parameters: objectSchema(map[string]any{
				"query": map[string]any{"type": "string", "description": "검색할 키워드"},
			}, "query"),
		},
		{
			Name:        ToolAddItem,
			Description: "주문에 메뉴 아이템을 추가합니다.",
			Parameters: objectSchema(map[string]any{
				"menu_id": map[string]any{
					"type":        "string",
					"description": "추가할 메뉴의 ID 또는 이름",
				},
				"quantity": map[string]any{
					"type":        "integer",
					"description": "수량 (기본 1)",
				},
				"options": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "옵션 ID 리스트 (예: cheese, bacon)",
				},
			}, "menu_id"),
		},
		{
			Name:        ToolRemoveItem,
			Description: "주문에서 메뉴 아이템을 제거합니다.",
			Parameters: objectSchema(map[string]any{
				"item_ref": map[string]any{
					"type":        "string",
					"description": "제거할 라인의 메뉴 ID 또는 이름",
				},
				"quantity": map[string]any{
					"type":        "integer",
					"description": "제거할 수량 (없으면 전체 제거)",
				},
			}, "item_ref"),
		},
		{
			Name:        ToolAdjustOptions,
			Description: "주문 라인의 옵션을 변경합니다.",
			Parameters: objectSchema(map[string]any{
				"item_ref": map[string]any{
					"type":        "string",
					"description": "변경할 라인의 메뉴 ID 또는 이름",
				},
				"options": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "교체할 옵션 ID 리스트",
				},
			}, "item_ref"),
		},
		{
			Name:        ToolGetOrder,
			Description: "현재 주문 내역을 조회합니다.",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        ToolConfirmOrder,
			Description: "주문을 최종 확정합니다. 확정 후에는 변경할 수 없습니다.",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        ToolCancelOrder,
			Description: "주문 전체를 취소합니다.",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        ToolSpecialRequest,
			Description: "특별 요청사항을 주문에 추가합니다.",
			Parameters: objectSchema(map[string]any{
				"request": map[string]any{"type": "string", "description": "특별 요청사항"},
			}, "request"),
		},
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
