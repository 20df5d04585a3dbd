package domain

type Room struct {
	Name RoomName
}
