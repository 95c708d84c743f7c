package funpay

// Account identifies the authenticated FunPay seller.
type Account struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Balance  string `json:"balance,omitempty"`
}

// Param is one buyer-supplied order field. Order matters: quantity
// resolution scans params in the order the buyer filled them in.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Order is a read-only snapshot of a marketplace order.
type Order struct {
	ID            string  `json:"id"`
	SubcategoryID int     `json:"subcategory_id"`
	LotID         int64   `json:"lot_id"`
	BuyerID       int64   `json:"buyer_id"`
	ChatID        int64   `json:"chat_id"`
	Title         string  `json:"title"`
	BuyerParams   []Param `json:"buyer_params"`
	Amount        int     `json:"amount"`
}

// Message is one inbound chat message.
type Message struct {
	ChatID   int64  `json:"chat_id"`
	AuthorID int64  `json:"author_id"`
	Text     string `json:"text"`
}

// Listing is a sale offer ("lot") that can be toggled active.
type Listing struct {
	ID            int64             `json:"id"`
	SubcategoryID int               `json:"subcategory_id"`
	Active        bool              `json:"active"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// Event is a marketplace update delivered by the Runner.
type Event interface{ isEvent() }

// NewOrderEvent signals a freshly paid order. Only the id is carried;
// consumers fetch the full order snapshot themselves.
type NewOrderEvent struct {
	OrderID string
}

// NewMessageEvent signals an inbound chat message.
type NewMessageEvent struct {
	Message Message
}

func (NewOrderEvent) isEvent()   {}
func (NewMessageEvent) isEvent() {}
