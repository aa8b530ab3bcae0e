package orders

const TopicNotifications = "order.notifications"

// Partition key = user id, so one user's notices stay in order.
func PartitionKey(userID string) []byte { return []byte(userID) }
