// AngelaMos | 2026
// dto.go

package notification

type SendRequest struct {
	Title    string `json:"title"    validate:"required,min=1,max=200"`
	Message  string `json:"message"  validate:"required,min=1,max=2000"`
	Audience string `json:"audience" validate:"required,max=128"`
}

type FeedItem struct {
	Notification
	Seen bool `json:"seen"`
}

type Feed struct {
	Items     []FeedItem `json:"items"`
	HasUnread bool       `json:"has_unread"`
}
