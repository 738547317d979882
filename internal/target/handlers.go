package target

import (
	"encoding/json"
	"net/http"
	"time"
)

func (s *Server) listPlayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.listPlayers())
}

func (s *Server) createPlayer(w http.ResponseWriter, r *http.Request) {
	var p Player
	if !decode(w, r, &p) {
		return
	}
	p.ID = 0
	writeJSON(w, http.StatusOK, s.store.savePlayer(p))
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.player(pathID(r))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.player(pathID(r))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var in Player
	if !decode(w, r, &in) {
		return
	}
	p.Name, p.Email = in.Name, in.Email
	writeJSON(w, http.StatusOK, s.store.savePlayer(p))
}

func (s *Server) deletePlayer(w http.ResponseWriter, r *http.Request) {
	if !s.store.deletePlayer(pathID(r)) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type boardRequest struct {
	Name  string  `json:"name"`
	Board [][]int `json:"board"`
}

func (b boardRequest) data() string {
	raw, err := json.Marshal(b.Board)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func (s *Server) listBoards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.listBoards())
}

func (s *Server) createBoard(w http.ResponseWriter, r *http.Request) {
	var in boardRequest
	if !decode(w, r, &in) {
		return
	}
	writeJSON(w, http.StatusOK, s.store.saveBoard(Board{Name: in.Name, BoardData: in.data()}))
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.board(pathID(r))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) updateBoard(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.board(pathID(r))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var in boardRequest
	if !decode(w, r, &in) {
		return
	}
	b.Name, b.BoardData = in.Name, in.data()
	writeJSON(w, http.StatusOK, s.store.saveBoard(b))
}

func (s *Server) deleteBoard(w http.ResponseWriter, r *http.Request) {
	if !s.store.deleteBoard(pathID(r)) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type playRequest struct {
	PlayerID *int64 `json:"playerId"`
	BoardID  *int64 `json:"boardId"`
}

// GameResult is the answer to a play request. Error is only set on 400s.
type GameResult struct {
	GameID        int64  `json:"gameId,omitempty"`
	PlayerName    string `json:"playerName,omitempty"`
	BoardName     string `json:"boardName,omitempty"`
	MinimumHealth int    `json:"minimumHealth,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (s *Server) playGame(w http.ResponseWriter, r *http.Request) {
	var in playRequest
	if !decode(w, r, &in) {
		return
	}
	if in.PlayerID == nil {
		writeJSON(w, http.StatusBadRequest, GameResult{Error: "Player not found"})
		return
	}
	p, err := s.store.player(*in.PlayerID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, GameResult{Error: "Player not found"})
		return
	}
	if in.BoardID == nil {
		writeJSON(w, http.StatusBadRequest, GameResult{Error: "Board not found"})
		return
	}
	b, err := s.store.board(*in.BoardID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, GameResult{Error: "Board not found"})
		return
	}

	hp := MinimumHP(b.Grid())
	g := s.store.saveGame(Game{Player: p, Board: b, Result: hp, PlayedAt: time.Now()})
	writeJSON(w, http.StatusOK, GameResult{
		GameID:        g.ID,
		PlayerName:    p.Name,
		BoardName:     b.Name,
		MinimumHealth: hp,
	})
}

func (s *Server) listGames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.listGames(nil))
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.game(pathID(r))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) gamesByPlayer(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	writeJSON(w, http.StatusOK, s.store.listGames(func(g Game) bool { return g.Player.ID == id }))
}

func (s *Server) gamesByBoard(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	writeJSON(w, http.StatusOK, s.store.listGames(func(g Game) bool { return g.Board.ID == id }))
}
