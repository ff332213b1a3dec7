package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func TestSubscriptionCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	repo := NewSubscriptionRepository(db)

	mock.ExpectQuery("INSERT INTO subscriptions").
		WithArgs(2, 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	sub, err := repo.Create(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.ID != 7 || sub.SubscriberID != 2 || sub.ChannelID != 1 {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubscriptionCreateDuplicateRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	repo := NewSubscriptionRepository(db)

	mock.ExpectQuery("INSERT INTO subscriptions").
		WillReturnError(&pq.Error{Code: "23505"})

	if _, err := repo.Create(context.Background(), 2, 1); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSubscriptionCreateUnknownChannel(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	repo := NewSubscriptionRepository(db)

	mock.ExpectQuery("INSERT INTO subscriptions").
		WillReturnError(&pq.Error{Code: "23503"})

	if _, err := repo.Create(context.Background(), 2, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubscriptionDeleteMissingEdge(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	repo := NewSubscriptionRepository(db)

	mock.ExpectExec("DELETE FROM subscriptions").
		WithArgs(2, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 2, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChannelProfile(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	repo := NewSubscriptionRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "username", "email", "full_name", "avatar_url", "cover_image_url",
		"subscriber_count", "subscribed_to_count", "is_subscribed",
	}).AddRow(1, "alice", "alice@x.com", "Alice Example", "http://m/b/avatars/a.png", "", 3, 2, true)

	mock.ExpectQuery(`lower\(u\.username\) = lower\(\$1\)`).
		WithArgs("Alice", 2).
		WillReturnRows(rows)

	profile, err := repo.ChannelProfile(context.Background(), "Alice", 2)
	if err != nil {
		t.Fatalf("ChannelProfile: %v", err)
	}
	if profile.SubscriberCount != 3 || profile.SubscribedToCount != 2 || !profile.IsSubscribed {
		t.Fatalf("unexpected aggregates: %+v", profile)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChannelProfileNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	repo := NewSubscriptionRepository(db)

	mock.ExpectQuery("SELECT").
		WithArgs("ghost", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.ChannelProfile(context.Background(), "ghost", 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
