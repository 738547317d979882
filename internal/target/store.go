package target

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

var errNotFound = errors.New("not found")

type Player struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Board keeps the grid serialized, the way the dungeon service stores it.
type Board struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	BoardData string `json:"boardData"`
}

func (b Board) Grid() [][]int {
	var grid [][]int
	if err := json.Unmarshal([]byte(b.BoardData), &grid); err != nil {
		return nil
	}
	return grid
}

type Game struct {
	ID       int64     `json:"id"`
	Player   Player    `json:"player"`
	Board    Board     `json:"board"`
	Result   int       `json:"result"`
	PlayedAt time.Time `json:"playedAt"`
}

// store is an in-memory repository keyed by sequential ids.
type store struct {
	mu      sync.RWMutex
	nextID  int64
	players map[int64]Player
	boards  map[int64]Board
	games   map[int64]Game
}

func newStore() *store {
	return &store{
		players: make(map[int64]Player),
		boards:  make(map[int64]Board),
		games:   make(map[int64]Game),
	}
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *store) savePlayer(p Player) Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.players[p.ID] = p
	return p
}

func (s *store) saveBoard(b Board) Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.id()
	}
	s.boards[b.ID] = b
	return b
}

func (s *store) saveGame(g Game) Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = s.id()
	s.games[g.ID] = g
	return g
}

func (s *store) player(id int64) (Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return Player{}, errNotFound
	}
	return p, nil
}

func (s *store) board(id int64) (Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[id]
	if !ok {
		return Board{}, errNotFound
	}
	return b, nil
}

func (s *store) game(id int64) (Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return Game{}, errNotFound
	}
	return g, nil
}

func (s *store) deletePlayer(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.players[id]
	delete(s.players, id)
	return ok
}

func (s *store) deleteBoard(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.boards[id]
	delete(s.boards, id)
	return ok
}

func (s *store) listPlayers() []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *store) listBoards() []Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Board, 0, len(s.boards))
	for _, b := range s.boards {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// listGames returns every game accepted by keep, oldest first.
func (s *store) listGames(keep func(Game) bool) []Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Game, 0, len(s.games))
	for _, g := range s.games {
		if keep == nil || keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
