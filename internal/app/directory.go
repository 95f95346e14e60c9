package app

import (
	"context"
	"strconv"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

// RoomAllowlist resolves a draft only when its room is listed.
type RoomAllowlist struct {
	rooms map[domain.RoomID]struct{}
}

var _ core.Directory = (*RoomAllowlist)(nil)

func NewRoomAllowlist(rooms []int64) *RoomAllowlist {
	set := make(map[domain.RoomID]struct{}, len(rooms))
	for _, id := range rooms {
		set[domain.RoomID(id)] = struct{}{}
	}
	return &RoomAllowlist{rooms: set}
}

func (a *RoomAllowlist) Resolve(_ context.Context, d domain.Draft) error {
	if _, ok := a.rooms[d.RoomID]; !ok {
		return domain.NotFound("room_not_found", "room "+strconv.FormatInt(int64(d.RoomID), 10)+" does not exist")
	}
	return nil
}
