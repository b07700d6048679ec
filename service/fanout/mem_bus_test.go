package fanout

import (
	"context"
	"testing"
)

func TestSubjectMatch(t *testing.T) {
	cases := []struct {
		pattern, subject string
		want             bool
	}{
		{"chat.room.general", "chat.room.general", true},
		{"chat.room.general", "chat.room.other", false},
		{"chat.room.*", "chat.room.general", true},
		{"chat.room.*", "chat.user.u1", false},
		{"chat.room.*", "chat.room.a.b", false},
		{"chat.>", "chat.room.a.b", true},
		{"chat.>", "chat", false},
		{"*.room.*", "chat.room.general", true},
	}
	for _, tc := range cases {
		if got := subjectMatch(tc.pattern, tc.subject); got != tc.want {
			t.Errorf("subjectMatch(%q, %q) = %v, want %v", tc.pattern, tc.subject, got, tc.want)
		}
	}
}

func TestMemBusPublishSubscribe(t *testing.T) {
	b := NewMemBus()
	defer b.Close()
	ctx := context.Background()

	var wildcard, exact, other []string
	if _, err := b.Subscribe(RoomSubjectPrefix+"*", func(_ context.Context, m Message) error {
		wildcard = append(wildcard, m.Subject+":"+string(m.Data))
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Subscribe(RoomSubject("general"), func(_ context.Context, m Message) error {
		exact = append(exact, string(m.Data))
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Subscribe(UserSubject("u1"), func(_ context.Context, m Message) error {
		other = append(other, string(m.Data))
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := b.Publish(ctx, RoomSubject("general"), []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(ctx, RoomSubject("random"), []byte("b")); err != nil {
		t.Fatal(err)
	}

	if len(wildcard) != 2 {
		t.Errorf("wildcard deliveries = %v", wildcard)
	}
	if len(exact) != 1 || exact[0] != "a" {
		t.Errorf("exact deliveries = %v", exact)
	}
	if len(other) != 0 {
		t.Errorf("user subject leaked room traffic: %v", other)
	}
}

func TestMemBusUnsubscribe(t *testing.T) {
	b := NewMemBus()
	defer b.Close()
	ctx := context.Background()

	n := 0
	sub, err := b.Subscribe("chat.room.general", func(context.Context, Message) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = b.Publish(ctx, "chat.room.general", []byte("x"))
	if err := sub.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	_ = b.Publish(ctx, "chat.room.general", []byte("y"))

	if n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
}

func TestMemBusMiddleware(t *testing.T) {
	var order []string
	mw := func(tag string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, m Message) error {
				order = append(order, tag)
				return next(ctx, m)
			}
		}
	}

	b := NewMemBus(mw("outer"), mw("inner"))
	defer b.Close()

	if _, err := b.Subscribe("s", func(context.Context, Message) error {
		order = append(order, "handler")
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	_ = b.Publish(context.Background(), "s", nil)

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
