package menu

import "strings"

type Category string

const (
	CategoryBurger  Category = "burger"
	CategorySide    Category = "side"
	CategoryDrink   Category = "drink"
	CategoryDessert Category = "dessert"
)

// Option is a selectable add-on with its surcharge in won.
type Option struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Surcharge int64  `json:"surcharge"`
}

// Item is one menu entry. Items are immutable once the catalog is built.
type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Price       int64    `json:"price"`
	Description string   `json:"description"`
	Available   bool     `json:"available"`
	Options     []Option `json:"options,omitempty"`
}

// Option returns the allowed option with the given ID.
func (it Item) Option(optionID string) (Option, bool) {
	for _, opt := range it.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return Option{}, false
}

// Catalog is the process-wide read-only menu table. Concurrent conversations
// read it without synchronization; there is no mutation API.
type Catalog struct {
	byID  map[string]Item
	items []Item
}

func NewCatalog() *Catalog {
	c := &Catalog{byID: make(map[string]Item, len(seedItems))}
	for _, it := range seedItems {
		c.byID[it.ID] = it
		c.items = append(c.items, it)
	}
	return c
}

// GetByID returns the item with the given menu ID. Not-found is not an error.
func (c *Catalog) GetByID(id string) (Item, bool) {
	it, ok := c.byID[id]
	return it, ok
}

// GetByName returns the first item whose name contains the given text,
// case-insensitive. The model frequently refers to items by name.
func (c *Catalog) GetByName(name string) (Item, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return Item{}, false
	}
	for _, it := range c.items {
		if strings.Contains(strings.ToLower(it.Name), needle) {
			return it, true
		}
	}
	return Item{}, false
}

// List returns available items, optionally filtered by category. An unknown
// category yields an empty result, never an error.
func (c *Catalog) List(category string) []Item {
	cat := Category(strings.ToLower(strings.TrimSpace(category)))
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		if !it.Available {
			continue
		}
		if cat != "" && it.Category != cat {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Search returns items whose name or description contains the keyword.
func (c *Catalog) Search(keyword string) []Item {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	if needle == "" {
		return nil
	}
	var out []Item
	for _, it := range c.items {
		if strings.Contains(strings.ToLower(it.Name), needle) ||
			strings.Contains(strings.ToLower(it.Description), needle) {
			out = append(out, it)
		}
	}
	return out
}

func (c *Catalog) All() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

var (
	optCheese = Option{ID: "cheese", Label: "치즈 추가", Surcharge: 700}
	optBacon  = Option{ID: "bacon", Label: "베이컨 추가", Surcharge: 1000}
	optPatty  = Option{ID: "patty", Label: "패티 추가", Surcharge: 1500}
	optSizeUp = Option{ID: "size_up", Label: "사이즈 업그레이드", Surcharge: 500}
	optShot   = Option{ID: "shot", Label: "샷 추가", Surcharge: 500}
)

var seedItems = []Item{
	{ID: "B001", Name: "클래식 버거", Category: CategoryBurger, Price: 5900,
		Description: "신선한 소고기 패티와 채소가 들어간 클래식 버거",
		Available:   true, Options: []Option{optCheese, optBacon, optPatty}},
	{ID: "B002", Name: "치즈 버거", Category: CategoryBurger, Price: 6900,
		Description: "고소한 치즈가 듬뿍 들어간 치즈 버거",
		Available:   true, Options: []Option{optCheese, optBacon, optPatty}},
	{ID: "B003", Name: "베이컨 버거", Category: CategoryBurger, Price: 7900,
		Description: "바삭한 베이컨이 들어간 프리미엄 버거",
		Available:   true, Options: []Option{optCheese, optBacon, optPatty}},
	{ID: "B004", Name: "더블 버거", Category: CategoryBurger, Price: 8900,
		Description: "패티 2장이 들어간 푸짐한 버거",
		Available:   true, Options: []Option{optCheese, optBacon, optPatty}},

	{ID: "S001", Name: "감자튀김", Category: CategorySide, Price: 2500,
		Description: "바삭바삭한 황금 감자튀김",
		Available:   true, Options: []Option{optSizeUp}},
	{ID: "S002", Name: "치즈스틱", Category: CategorySide, Price: 3500,
		Description: "쫄깃한 모차렐라 치즈스틱", Available: true},
	{ID: "S003", Name: "어니언링", Category: CategorySide, Price: 3000,
		Description: "바삭한 양파링", Available: true},

	{ID: "D001", Name: "콜라", Category: CategoryDrink, Price: 2000,
		Description: "시원한 콜라",
		Available:   true, Options: []Option{optSizeUp}},
	{ID: "D002", Name: "사이다", Category: CategoryDrink, Price: 2000,
		Description: "상큼한 사이다",
		Available:   true, Options: []Option{optSizeUp}},
	{ID: "D003", Name: "아메리카노", Category: CategoryDrink, Price: 2500,
		Description: "진한 아메리카노",
		Available:   true, Options: []Option{optSizeUp, optShot}},

	{ID: "DS001", Name: "아이스크림", Category: CategoryDessert, Price: 2000,
		Description: "부드러운 소프트 아이스크림", Available: true},
	{ID: "DS002", Name: "애플파이", Category: CategoryDessert, Price: 2500,
		Description: "따뜻한 애플파이", Available: true},
}
