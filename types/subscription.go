package types

import "time"

// Subscription is a directed edge in the subscription graph: the
// subscriber follows the channel.
type Subscription struct {
	// ID is the unique identifier of the edge.
	ID int `json:"id" db:"id"`

	// SubscriberID is the user doing the subscribing.
	SubscriberID int `json:"subscriber_id" db:"subscriber_id"`

	// ChannelID is the user being subscribed to.
	ChannelID int `json:"channel_id" db:"channel_id"`

	// CreatedAt is the timestamp when the subscription was made.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ChannelProfile is the viewer-relative public view of a channel:
// identity and media fields plus aggregates over the subscription
// graph. Credential fields are never part of this projection.
type ChannelProfile struct {
	ID            int    `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	AvatarURL     string `json:"avatar_url"`
	CoverImageURL string `json:"cover_image_url,omitempty"`

	// SubscriberCount is the number of users subscribed to this channel.
	SubscriberCount int `json:"subscriber_count"`

	// SubscribedToCount is the number of channels this user subscribes to.
	SubscribedToCount int `json:"subscribed_to_count"`

	// IsSubscribed reports whether the viewing user subscribes to this
	// channel. Always false for anonymous-equivalent viewers.
	IsSubscribed bool `json:"is_subscribed"`
}
