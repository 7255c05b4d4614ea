package chat

import (
	"reflect"
	"testing"
)

func TestNewRoomsDefaults(t *testing.T) {
	rooms, err := NewRooms([]string{"General", "News"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rooms.Default() != "General" {
		t.Errorf("expected default General, got %q", rooms.Default())
	}
}

func TestNewRoomsValidation(t *testing.T) {
	if _, err := NewRooms(nil, ""); err == nil {
		t.Error("expected error for empty room set")
	}
	if _, err := NewRooms([]string{"General"}, "Lobby"); err == nil {
		t.Error("expected error for default outside the room set")
	}
}

func TestRoomsIsValid(t *testing.T) {
	rooms, err := NewRooms([]string{"General", "News"}, "News")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rooms.IsValid("General") || !rooms.IsValid("News") {
		t.Error("expected configured rooms to be valid")
	}
	if rooms.IsValid("Lobby") {
		t.Error("expected unconfigured room to be invalid")
	}
	if rooms.Default() != "News" {
		t.Errorf("expected default News, got %q", rooms.Default())
	}
}

func TestRoomsNamesCopy(t *testing.T) {
	rooms, _ := NewRooms([]string{"General", "News"}, "")
	names := rooms.Names()
	names[0] = "mutated"
	if !reflect.DeepEqual(rooms.Names(), []string{"General", "News"}) {
		t.Error("Names must return a copy")
	}
}
