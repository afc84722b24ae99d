package messaging

// Topics carrying order lifecycle events between the API and the
// notification worker.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
)
