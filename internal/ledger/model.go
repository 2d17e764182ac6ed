package ledger

import "time"

type RoomStatus string

const (
	StatusActive  RoomStatus = "active"
	StatusSettled RoomStatus = "settled"
)

// Room is the registry record that owns a session.
type Room struct {
	ID            string     `json:"room_id"`
	BuyIn         int64      `json:"buy_in"`
	RebuysAllowed bool       `json:"rebuys"`
	Status        RoomStatus `json:"status"`
	CreatedBy     string     `json:"created_by"`
	Members       []string   `json:"players"`
	CreatedAt     time.Time  `json:"created_at"`
}

// HasMember reports whether playerID has joined the room.
func (r Room) HasMember(playerID string) bool {
	for _, m := range r.Members {
		if m == playerID {
			return true
		}
	}
	return false
}

// Entry is one player's position inside a room session.
type Entry struct {
	PlayerID  string  `json:"player"`
	BuyIn     int64   `json:"buy_in"`
	ChipCount int64   `json:"chip_count"`
	Rebuys    []int64 `json:"rebuys"`
}

// NewEntry returns the entry a player starts with when joining.
func NewEntry(playerID string, buyIn int64) Entry {
	return Entry{PlayerID: playerID, BuyIn: buyIn, ChipCount: buyIn, Rebuys: []int64{}}
}

func (e Entry) TotalRebuys() int64 {
	var total int64
	for _, r := range e.Rebuys {
		total += r
	}
	return total
}

// Net is the chip count minus everything the player put in.
func (e Entry) Net() int64 {
	return e.ChipCount - (e.BuyIn + e.TotalRebuys())
}

// Clone returns a copy that shares no memory with e. Rebuys is never nil.
func (e Entry) Clone() Entry {
	out := e
	out.Rebuys = append(make([]int64, 0, len(e.Rebuys)), e.Rebuys...)
	return out
}

// Snapshot is a point-in-time copy of a session. Entries are ordered by player id.
type Snapshot struct {
	RoomID  string  `json:"room_id"`
	Frozen  bool    `json:"frozen"`
	Entries []Entry `json:"players"`
}

func (s Snapshot) Entry(playerID string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.PlayerID == playerID {
			return e, true
		}
	}
	return Entry{}, false
}
