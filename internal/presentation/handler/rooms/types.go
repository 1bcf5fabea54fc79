package rooms

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

type roomResponse struct {
	RoomID  string `json:"roomId"`
	IsOwner bool   `json:"isOwner"`
	TTL     int64  `json:"ttl"` // seconds
}
