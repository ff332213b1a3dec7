package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/streamhub/apiserver/types"
)

// SubscriptionRepository handles persistence for the subscription graph.
type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create records that subscriber follows channel. Re-following an
// already followed channel yields ErrConflict; a channel that does not
// exist trips the foreign key and yields ErrNotFound.
func (r *SubscriptionRepository) Create(ctx context.Context, subscriberID, channelID int) (types.Subscription, error) {
	sub := types.Subscription{
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    time.Now(),
	}

	const query = `
		INSERT INTO subscriptions (subscriber_id, channel_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, sub.SubscriberID, sub.ChannelID, sub.CreatedAt).Scan(&sub.ID); err != nil {
		if isUniqueViolation(err) {
			return types.Subscription{}, ErrConflict
		}
		if isForeignKeyViolation(err) {
			return types.Subscription{}, ErrNotFound
		}
		return types.Subscription{}, err
	}
	return sub, nil
}

// Delete removes the subscriber → channel edge.
func (r *SubscriptionRepository) Delete(ctx context.Context, subscriberID, channelID int) error {
	const query = `
		DELETE FROM subscriptions
		WHERE subscriber_id = $1 AND channel_id = $2`
	result, err := r.db.ExecContext(ctx, query, subscriberID, channelID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ChannelProfile resolves a channel by username and aggregates its
// subscription edges in one statement: subscriber count, subscribed-to
// count, and whether the viewer follows the channel. The column list is
// an allow-list; credential columns are never selected.
func (r *SubscriptionRepository) ChannelProfile(ctx context.Context, username string, viewerID int) (types.ChannelProfile, error) {
	const query = `
		SELECT u.id,
			u.username,
			u.email,
			u.full_name,
			u.avatar_url,
			u.cover_image_url,
			(SELECT count(*) FROM subscriptions s WHERE s.channel_id = u.id) AS subscriber_count,
			(SELECT count(*) FROM subscriptions s WHERE s.subscriber_id = u.id) AS subscribed_to_count,
			EXISTS (
				SELECT 1 FROM subscriptions s
				WHERE s.channel_id = u.id AND s.subscriber_id = $2
			) AS is_subscribed
		FROM users u
		WHERE lower(u.username) = lower($1)`

	var profile types.ChannelProfile
	err := r.db.QueryRowContext(ctx, query, username, viewerID).Scan(
		&profile.ID,
		&profile.Username,
		&profile.Email,
		&profile.FullName,
		&profile.AvatarURL,
		&profile.CoverImageURL,
		&profile.SubscriberCount,
		&profile.SubscribedToCount,
		&profile.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ChannelProfile{}, ErrNotFound
		}
		return types.ChannelProfile{}, err
	}
	return profile, nil
}
