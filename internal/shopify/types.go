package shopify

// Order is the subset of the Admin API order object the bridge reads.
type Order struct {
	ID                int64    `json:"id"`
	OrderNumber       int64    `json:"order_number"`
	Name              string   `json:"name"`
	Tags              string   `json:"tags"`
	FulfillmentStatus string   `json:"fulfillment_status"`
	Customer          Customer `json:"customer"`
}

type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// Fulfilled reports whether the order has already shipped (fully or partially).
func (o Order) Fulfilled() bool {
	return o.FulfillmentStatus == "fulfilled" || o.FulfillmentStatus == "partial"
}

type ordersResponse struct {
	Orders []Order `json:"orders"`
}

type orderResponse struct {
	Order Order `json:"order"`
}

type orderUpdateRequest struct {
	Order orderUpdate `json:"order"`
}

type orderUpdate struct {
	ID   int64  `json:"id"`
	Tags string `json:"tags"`
}
