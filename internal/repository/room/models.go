package room

// PlaybackState is the authoritative description of what every client
// in a room should be rendering. PositionSeconds is the position as of
// AsOf (unix ms, coordinator clock), never a live-extrapolated value.
// Version strictly increases on every accepted change and is never
// reused.
type PlaybackState struct {
	VideoRef        string  `redis:"video_ref" json:"video_ref"`
	Playing         bool    `redis:"playing" json:"playing"`
	PositionSeconds float64 `redis:"position_seconds" json:"position_seconds"`
	AsOf            int64   `redis:"as_of" json:"as_of"`
	Version         uint64  `redis:"version" json:"version"`
}

type Room struct {
	Name      string `redis:"name" json:"name"`
	CreatorId string `redis:"creator_id" json:"creator_id"`
	CreatedAt int64  `redis:"created_at" json:"created_at"`
}

type SetRoomParams struct {
	RoomId    string
	Name      string
	CreatorId string
	CreatedAt int64
	AsOf      int64
}

type CompareAndSwapPlaybackStateParams struct {
	RoomId          string
	ExpectedVersion uint64
	VideoRef        string
	Playing         bool
	PositionSeconds float64
	AsOf            int64
}

type HeartbeatParams struct {
	RoomId string
	UserId string
	At     int64
}

type ListActiveParams struct {
	RoomId string
	Since  int64
}

type RemoveStaleParticipantsParams struct {
	RoomId string
	Before int64
}
