package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/susu3304/chipledger/internal/ledger"
)

type createRoomRequest struct {
	BuyIn  int64 `json:"buy_in"`
	Rebuys *bool `json:"rebuys"`
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	var req createRoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rebuys := true
	if req.Rebuys != nil {
		rebuys = *req.Rebuys
	}
	room, err := a.rooms.CreateRoom(r.Context(), claims.UserID, req.BuyIn, rebuys)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (a *API) handleLatestRoom(w http.ResponseWriter, r *http.Request) {
	room, err := a.rooms.LatestRoom(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (a *API) handleRoomDetails(w http.ResponseWriter, r *http.Request) {
	d, err := a.rooms.Details(r.Context(), mux.Vars(r)["room_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type addPlayerRequest struct {
	UserID string `json:"user_id"`
	// BuyIn defaults to the room buy-in.
	BuyIn *int64 `json:"buy_in"`
}

func (a *API) handleAddPlayer(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	var req addPlayerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var buyIn int64
	if req.BuyIn != nil {
		buyIn = *req.BuyIn
	} else {
		room, err := a.rooms.Get(r.Context(), roomID)
		if err != nil {
			writeError(w, err)
			return
		}
		buyIn = room.BuyIn
	}

	entry, guest, err := a.rooms.AddPlayer(r.Context(), roomID, req.UserID, buyIn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"entry":         entry,
		"guest_created": guest,
	})
}

type chipsRequest struct {
	ChipCount *int64 `json:"chip_count"`
}

func (a *API) handleUpdateChips(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req chipsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChipCount == nil {
		writeErrorStatus(w, http.StatusBadRequest, "chip_count is required")
		return
	}
	entry, err := a.rooms.UpdateChipCount(r.Context(), vars["room_id"], vars["user_id"], *req.ChipCount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type rebuyRequest struct {
	Amount int64 `json:"amount"`
}

func (a *API) handleRebuy(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req rebuyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := a.rooms.RecordRebuy(r.Context(), vars["room_id"], vars["user_id"], req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleSettle(w http.ResponseWriter, r *http.Request) {
	res, err := a.rooms.Settle(r.Context(), mux.Vars(r)["room_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type summaryRequest struct {
	Message string `json:"message"`
}

// handleSummary sends a message to every member of the room. Without a
// message the settlement summary of a settled room is sent.
func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	var req summaryRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	room, err := a.rooms.Get(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		if room.Status != ledger.StatusSettled {
			writeErrorStatus(w, http.StatusBadRequest, "message is required until the room is settled")
			return
		}
		res, err := a.rooms.Settle(r.Context(), roomID)
		if err != nil {
			writeError(w, err)
			return
		}
		msg = res.Summary()
	}

	writeJSON(w, http.StatusOK, a.notifier.SendSummary(r.Context(), room, msg))
}

func (a *API) handlePlayerRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.rooms.RoomsForPlayer(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (a *API) handleRegulars(w http.ResponseWriter, r *http.Request) {
	minGames := a.config.RegularsMinGames
	if v := r.URL.Query().Get("min_games"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeErrorStatus(w, http.StatusBadRequest, "invalid min_games")
			return
		}
		minGames = n
	}
	regs, err := a.rooms.Regulars(r.Context(), mux.Vars(r)["user_id"], minGames)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}
