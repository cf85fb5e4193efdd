package shop

const (
	TopicOrderPlaced  = "shop.order.placed"
	TopicStockChanged = "shop.stock.changed"
)

// Partition key per SKU keeps stock events for one item in order.
func StockPartitionKey(sku string) []byte { return []byte(sku) }

// Partition key per order keeps all events of one order in order.
func OrderPartitionKey(orderID string) []byte { return []byte(orderID) }
