package completion

import (
	"math/rand"
	"sync"
	"time"

	"questboard/internal/config"
	"questboard/services/points"
	"questboard/services/reward"

	"go.uber.org/zap"
)

// Outcome is a resolved completion reward: either a point amount or a single
// catalog item.
type Outcome struct {
	SourceType points.SourceType
	Points     int64
	Item       *reward.RewardItem
}

// Lottery turns a completion event into an Outcome. Regular tasks pay a
// deterministic flat amount. Top3 tasks flip a fair coin between an enhanced
// point payout and one uniformly chosen active catalog item; an empty
// catalog falls back to the point payout so a completion never resolves to
// nothing.
type Lottery struct {
	basePoints int64
	top3Points int64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewLottery(cfg *config.Config) *Lottery {
	return &Lottery{
		basePoints: cfg.Economy.CompletionPoints,
		top3Points: cfg.Economy.Top3CompletionPoints,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// withSource pins the random source, for deterministic tests.
func (l *Lottery) withSource(src rand.Source) *Lottery {
	l.rng = rand.New(src)
	return l
}

func (l *Lottery) Resolve(isTop3 bool, pool []*reward.RewardItem) Outcome {
	if !isTop3 {
		return Outcome{SourceType: points.SourceTaskComplete, Points: l.basePoints}
	}

	l.mu.Lock()
	coin := l.rng.Intn(2)
	var pick int
	if len(pool) > 0 {
		pick = l.rng.Intn(len(pool))
	}
	l.mu.Unlock()

	if coin == 0 {
		return Outcome{SourceType: points.SourceTaskCompleteTop3, Points: l.top3Points}
	}

	if len(pool) == 0 {
		zap.L().Warn("lottery rolled an item with an empty reward catalog, falling back to points")
		return Outcome{SourceType: points.SourceTaskCompleteTop3, Points: l.top3Points}
	}

	return Outcome{SourceType: points.SourceTaskCompleteTop3, Item: pool[pick]}
}
