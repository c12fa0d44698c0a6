package feed

import (
	"slices"
	"testing"

	"bazaar/internal/domain"
)

func TestStoreReplaceDropsRepeatedIDs(t *testing.T) {
	store := NewStore()
	actor := domain.UserActor(1)

	store.Replace(decorated(
		makePost(1, 1, nil, actor),
		makePost(2, 2, nil, actor),
		makePost(1, 1, nil, actor),
	))

	if got := postIDs(store.Posts()); !slices.Equal(got, []int64{1, 2}) {
		t.Fatalf("unexpected posts after replace: %v", got)
	}

	store.Replace(decorated(makePost(3, 3, nil, actor)))

	if got := postIDs(store.Posts()); !slices.Equal(got, []int64{3}) {
		t.Fatalf("expected replace to overwrite, got %v", got)
	}
}

func TestStoreAppendKeepsPositionAndIsIdempotent(t *testing.T) {
	store := NewStore()
	actor := domain.UserActor(1)

	store.Replace(decorated(makePost(1, 1, nil, actor), makePost(2, 2, nil, actor)))

	page := decorated(makePost(2, 2, nil, actor), makePost(3, 3, nil, actor), makePost(4, 4, nil, actor))
	store.Append(page)
	once := postIDs(store.Posts())

	store.Append(page)
	twice := postIDs(store.Posts())

	want := []int64{1, 2, 3, 4}
	if !slices.Equal(once, want) {
		t.Fatalf("unexpected merge: got %v want %v", once, want)
	}

	if !slices.Equal(once, twice) {
		t.Fatalf("expected idempotent append, got %v then %v", once, twice)
	}
}

func TestStoreUpdateUnknownPost(t *testing.T) {
	store := NewStore()

	if store.Update(42, func(*domain.DecoratedPost) {}) {
		t.Fatalf("expected update of unknown post to report false")
	}
}

func TestStorePostsReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Replace(decorated(makePost(1, 1, nil, domain.UserActor(1))))

	posts := store.Posts()
	posts[0].LikeCount = 99

	if got, _ := store.Get(1); got.LikeCount != 0 {
		t.Fatalf("expected stored post to be unaffected, got %d likes", got.LikeCount)
	}
}
