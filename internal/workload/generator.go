package workload

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// BoardBounds limits generated boards: both dimensions in [MinSize, MaxSize]
// and every cell in [MinVal, MaxVal].
type BoardBounds struct {
	MinSize int `mapstructure:"min_size" yaml:"min_size"`
	MaxSize int `mapstructure:"max_size" yaml:"max_size"`
	MinVal  int `mapstructure:"min_val" yaml:"min_val"`
	MaxVal  int `mapstructure:"max_val" yaml:"max_val"`
}

var DefaultBoardBounds = BoardBounds{MinSize: 5, MaxSize: 20, MinVal: -10, MaxVal: 10}

func (b BoardBounds) Validate() error {
	var errs []error
	if b.MinSize < 1 {
		errs = append(errs, errors.New("board min_size must be at least 1"))
	}
	if b.MaxSize < b.MinSize {
		errs = append(errs, errors.New("board max_size must not be below min_size"))
	}
	if b.MaxVal < b.MinVal {
		errs = append(errs, errors.New("board max_val must not be below min_val"))
	}
	return errors.Join(errs...)
}

// Generator is the only source of randomness of a virtual user. Two
// generators built from the same seed and VU id produce the same sequence.
type Generator struct {
	r *rand.Rand
}

func NewGenerator(seed uint64, vu int64) *Generator {
	return &Generator{r: rand.New(rand.NewPCG(seed, uint64(vu)))}
}

// Intn returns a value in [0, n), or 0 when n <= 0.
func (g *Generator) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return g.r.IntN(n)
}

// Between returns a value in [lo, hi], both ends included.
func (g *Generator) Between(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + g.r.IntN(hi-lo+1)
}

// Board returns a rectangular grid within b.
func (g *Generator) Board(b BoardBounds) [][]int {
	rows := g.Between(b.MinSize, b.MaxSize)
	cols := g.Between(b.MinSize, b.MaxSize)
	board := make([][]int, rows)
	for i := range board {
		row := make([]int, cols)
		for j := range row {
			row[j] = g.Between(b.MinVal, b.MaxVal)
		}
		board[i] = row
	}
	return board
}

// ThinkTime is uniform in [0, limit].
func (g *Generator) ThinkTime(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(g.r.Int64N(int64(limit) + 1))
}

func (g *Generator) Choice(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[g.r.IntN(len(items))]
}

// Read fills p from the generator so it can feed uuid.NewRandomFromReader.
func (g *Generator) Read(p []byte) (int, error) {
	var buf [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(buf[:], g.r.Uint64())
		copy(p[i:], buf[:])
	}
	return len(p), nil
}

// UUID returns a version 4 UUID drawn from the generator.
func (g *Generator) UUID() string {
	id, err := uuid.NewRandomFromReader(g)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
