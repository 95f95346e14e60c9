package domain

// RoomID scopes both sequence numbering and event routing.
type RoomID int64

// RoomInfo is a read-only view of a room's live fan-out state.
type RoomInfo struct {
	ID          RoomID `json:"roomId"`
	Subscribers int    `json:"subscribers"`
}
