// Package workload holds the dungeon game workflow run by every virtual
// user and the seeded generator that feeds it.
package workload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"dungeonload/internal/check"
	"dungeonload/internal/httpx"
	"dungeonload/internal/pool"
)

// Variant selects which of the script's behaviours is run.
type Variant string

const (
	// VariantFull captures the game id from the play response.
	VariantFull Variant = "full"
	// VariantBasic never captures it, so the game fetch is always skipped.
	VariantBasic Variant = "basic"
)

func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantFull, VariantBasic:
		return v, nil
	case "":
		return VariantFull, nil
	}
	return "", fmt.Errorf("unknown variant %q (want full or basic)", s)
}

// Check names, as reported in summaries and threshold selectors.
const (
	CheckPlayerCreated = "player created"
	CheckBoardCreated  = "board created"
	CheckGamePlayed    = "game played"
	CheckPlayerFetched = "player fetched"
	CheckBoardFetched  = "board fetched"
	CheckGameFetched   = "game fetched"
	CheckGamesFetched  = "games fetched"
)

// Doer sends one request and records it.
type Doer interface {
	Do(ctx context.Context, r httpx.Request) httpx.Response
}

// Recorder is the part of the aggregator the script writes to.
type Recorder interface {
	check.Recorder
	RecordDataError()
	RecordIteration(time.Duration)
}

type Options struct {
	BaseURL string
	Variant Variant
	// ThinkTimeMax bounds the random pause before every step.
	ThinkTimeMax time.Duration
	// StartDelay and EndPause wrap every iteration.
	StartDelay time.Duration
	EndPause   time.Duration
	Board      BoardBounds
	Names      NameTemplates
	Seed       uint64
	Logger     *zap.Logger
}

// WorkflowState carries the ids captured during one iteration. It is never
// shared between iterations or users.
type WorkflowState struct {
	PlayerID string
	BoardID  string
	GameID   string
}

// DungeonScript builds one session per virtual user.
type DungeonScript struct {
	client Doer
	rec    Recorder
	opts   Options
	names  *TemplateEngine
	log    *zap.Logger
	base   string
}

var _ pool.UserFactory = (*DungeonScript)(nil)

func NewDungeonScript(client Doer, rec Recorder, opts Options) (*DungeonScript, error) {
	if client == nil || rec == nil {
		return nil, errors.New("dungeon script needs a client and a recorder")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	if opts.Variant == "" {
		opts.Variant = VariantFull
	}
	if opts.Board == (BoardBounds{}) {
		opts.Board = DefaultBoardBounds
	}
	if err := opts.Board.Validate(); err != nil {
		return nil, err
	}
	names, err := NewTemplateEngine(opts.Names)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &DungeonScript{
		client: client,
		rec:    rec,
		opts:   opts,
		names:  names,
		log:    log,
		base:   strings.TrimRight(opts.BaseURL, "/"),
	}, nil
}

func (s *DungeonScript) NewUser(id int64) pool.Iterator {
	gen := NewGenerator(s.opts.Seed, id)
	return &session{
		script: s,
		vu:     id,
		gen:    gen,
		namer:  s.names.Namer(gen),
	}
}

type session struct {
	script *DungeonScript
	vu     int64
	gen    *Generator
	namer  *Namer
}

// Iterate runs the workflow once. Once ctx is done no further step starts;
// a request already sent runs to completion.
func (u *session) Iterate(ctx context.Context, iteration int64) {
	start := time.Now()
	opts := u.script.opts

	if !sleep(ctx, opts.StartDelay) {
		return
	}
	var ws WorkflowState
	for _, st := range steps {
		if !sleep(ctx, u.gen.ThinkTime(opts.ThinkTimeMax)) {
			return
		}
		u.run(ctx, st, iteration, &ws)
	}
	sleep(ctx, opts.EndPause)
	u.script.rec.RecordIteration(time.Since(start))
}

func (u *session) run(ctx context.Context, st step, iteration int64, ws *WorkflowState) {
	s := u.script
	path, ok := st.path(ws)
	var body any
	if ok && st.body != nil {
		var err error
		if body, err = st.body(u, iteration, ws); err != nil {
			s.log.Warn("build request body", zap.String("step", st.check), zap.Int64("vu", u.vu), zap.Error(err))
			ok = false
		}
	}
	if !ok {
		s.rec.RecordDataError()
		check.Skip(s.rec, st.check)
		s.log.Debug("step skipped", zap.String("step", st.check), zap.Int64("vu", u.vu))
		return
	}

	resp := s.client.Do(context.WithoutCancel(ctx), httpx.Request{
		Method:   st.method,
		URL:      s.base + path,
		Endpoint: st.endpoint,
		Body:     body,
		VU:       u.vu,
	})
	expect := st.expect
	if st.full != nil && s.opts.Variant == VariantFull {
		expect = st.full
	}
	check.Evaluate(s.rec, resp, check.Check{Name: st.check, Predicate: expect})
	if st.capture != nil {
		st.capture(ws, resp, s.opts.Variant)
	}
}

// sleep waits d or until ctx is done and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type step struct {
	check    string
	method   string
	endpoint string
	// path returns false when an id it needs was not captured.
	path    func(*WorkflowState) (string, bool)
	body    func(*session, int64, *WorkflowState) (any, error)
	expect  check.Predicate
	// full replaces expect in the full variant.
	full    check.Predicate
	capture func(*WorkflowState, httpx.Response, Variant)
}

type playerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type boardPayload struct {
	Name  string  `json:"name"`
	Board [][]int `json:"board"`
}

type playPayload struct {
	PlayerID any `json:"playerId"`
	BoardID  any `json:"boardId"`
}

var steps = []step{
	{
		check:    CheckPlayerCreated,
		method:   http.MethodPost,
		endpoint: "POST /api/players",
		path:     fixed("/api/players"),
		body: func(u *session, it int64, _ *WorkflowState) (any, error) {
			d := u.nameData(it)
			name, err := u.namer.Player(d)
			if err != nil {
				return nil, err
			}
			email, err := u.namer.Email(d)
			if err != nil {
				return nil, err
			}
			return playerPayload{Name: name, Email: email}, nil
		},
		expect: check.StatusIn(http.StatusOK, http.StatusCreated),
		capture: func(ws *WorkflowState, r httpx.Response, _ Variant) {
			ws.PlayerID, _ = r.Capture("id")
		},
	},
	{
		check:    CheckBoardCreated,
		method:   http.MethodPost,
		endpoint: "POST /api/boards",
		path:     fixed("/api/boards"),
		body: func(u *session, it int64, _ *WorkflowState) (any, error) {
			name, err := u.namer.Board(u.nameData(it))
			if err != nil {
				return nil, err
			}
			return boardPayload{Name: name, Board: u.gen.Board(u.script.opts.Board)}, nil
		},
		expect: check.StatusIn(http.StatusOK, http.StatusCreated),
		capture: func(ws *WorkflowState, r httpx.Response, _ Variant) {
			ws.BoardID, _ = r.Capture("id")
		},
	},
	{
		check:    CheckGamePlayed,
		method:   http.MethodPost,
		endpoint: "POST /api/games/play",
		path: func(ws *WorkflowState) (string, bool) {
			return "/api/games/play", ws.PlayerID != "" && ws.BoardID != ""
		},
		body: func(_ *session, _ int64, ws *WorkflowState) (any, error) {
			return playPayload{PlayerID: idValue(ws.PlayerID), BoardID: idValue(ws.BoardID)}, nil
		},
		expect: check.StatusOK(),
		full:   check.All(check.StatusOK(), check.JSONHas("gameId")),
		capture: func(ws *WorkflowState, r httpx.Response, v Variant) {
			if v == VariantFull {
				ws.GameID, _ = r.Capture("gameId")
			}
		},
	},
	{
		check:    CheckPlayerFetched,
		method:   http.MethodGet,
		endpoint: "GET /api/players/{id}",
		path:     byID("/api/players/", func(ws *WorkflowState) string { return ws.PlayerID }),
		expect:   check.StatusOK(),
	},
	{
		check:    CheckBoardFetched,
		method:   http.MethodGet,
		endpoint: "GET /api/boards/{id}",
		path:     byID("/api/boards/", func(ws *WorkflowState) string { return ws.BoardID }),
		expect:   check.StatusOK(),
	},
	{
		check:    CheckGameFetched,
		method:   http.MethodGet,
		endpoint: "GET /api/games/{id}",
		path:     byID("/api/games/", func(ws *WorkflowState) string { return ws.GameID }),
		expect:   check.StatusOK(),
	},
	{
		check:    CheckGamesFetched,
		method:   http.MethodGet,
		endpoint: "GET /api/games",
		path:     fixed("/api/games"),
		expect:   check.StatusOK(),
	},
}

// Steps lists the check names in workflow order.
func Steps() []string {
	names := make([]string, len(steps))
	for i, st := range steps {
		names[i] = st.check
	}
	return names
}

func fixed(p string) func(*WorkflowState) (string, bool) {
	return func(*WorkflowState) (string, bool) { return p, true }
}

func byID(prefix string, id func(*WorkflowState) string) func(*WorkflowState) (string, bool) {
	return func(ws *WorkflowState) (string, bool) {
		v := id(ws)
		if v == "" {
			return "", false
		}
		return prefix + url.PathEscape(v), true
	}
}

// idValue sends numeric ids as JSON numbers and anything else as a string.
func idValue(id string) any {
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}

func (u *session) nameData(iteration int64) NameData {
	return NameData{VU: u.vu, Iteration: iteration, Millis: time.Now().UnixMilli()}
}
