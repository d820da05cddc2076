package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderStatus    = "order.status.changed"
	TopicStockCommitted = "order.stock.committed"
	TopicStockRejected  = "order.stock.rejected"
	TopicStockReleased  = "order.stock.released"
	TopicStockAlerts    = "inventory.alerts"
)

// Partition key = order_id so every event for one order keeps its ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
