package game

import (
	"errors"
	"math/rand"
	"sync"

	"SquizFM/model"
)

var (
	// ErrPoolExhausted 歌单中已没有可出题的曲目
	ErrPoolExhausted = errors.New("no eligible tracks left in playlist")
	// ErrNotEnoughDecoys 凑不够干扰项
	ErrNotEnoughDecoys = errors.New("not enough decoy tracks")
)

const (
	decoyCount = 3
	// selectRetries 凑不够干扰项时更换正确曲目重试的次数上限
	selectRetries = 5
	// positionBonus 榜单位置加成的最大值。热度之外，
	// 歌单靠前的曲目更可能被玩家认出，抽中概率相应上调。
	positionBonus = 50.0
)

// Selector 负责从歌单中抽取题目曲目并装配选项。
// 并发安全，多局游戏共用一个实例。
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector 创建选曲器
func NewSelector(seed int64) *Selector {
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

func (s *Selector) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *Selector) float64n(max float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() * max
}

// trackWeight 曲目在按热度排好序的候选列表中的抽取权重
func trackWeight(t *model.CatalogTrack, index, total int) float64 {
	return float64(t.Popularity) + float64(total-index)/float64(total)*positionBonus
}

// PickWeightedTrack 按权重从候选列表中抽取一首曲目。
// pool 需按热度降序排列，used 中的曲目不参与抽取，
// 位置加成按过滤后剩余候选的次序计算。
func (s *Selector) PickWeightedTrack(pool []model.CatalogTrack, used map[string]bool) (*model.CatalogTrack, error) {
	candidates := make([]*model.CatalogTrack, 0, len(pool))
	for i := range pool {
		if used[pool[i].ID] {
			continue
		}
		candidates = append(candidates, &pool[i])
	}
	if len(candidates) == 0 {
		return nil, ErrPoolExhausted
	}

	weights := make([]float64, len(candidates))
	total := 0.0
	for i, t := range candidates {
		weights[i] = trackWeight(t, i, len(candidates))
		total += weights[i]
	}
	if total <= 0 {
		return nil, ErrPoolExhausted
	}

	r := s.float64n(total)
	acc := 0.0
	for i, t := range candidates {
		acc += weights[i]
		if r < acc {
			return t, nil
		}
	}
	// 浮点累加误差兜底
	return candidates[len(candidates)-1], nil
}

// AssembleDecoys 从歌单里为正确曲目挑选干扰项。
// 与正确曲目同ID或同名的候选会被排除，避免出现两个"正确"选项。
// 干扰项同样按权重抽取，抽走一个后在剩余候选上继续抽，
// 这样热门曲目也更常作为干扰项出现，选项难度更均衡。
func (s *Selector) AssembleDecoys(correct *model.CatalogTrack, pool []model.CatalogTrack) ([]model.CatalogTrack, error) {
	eligible := make([]model.CatalogTrack, 0, len(pool))
	seen := make(map[string]bool)
	for _, t := range pool {
		if t.ID == correct.ID || t.Name == correct.Name {
			continue
		}
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		eligible = append(eligible, t)
	}
	if len(eligible) < decoyCount {
		return nil, ErrNotEnoughDecoys
	}

	decoys := make([]model.CatalogTrack, 0, decoyCount)
	for len(decoys) < decoyCount {
		t, err := s.PickWeightedTrack(eligible, nil)
		if err != nil {
			return nil, ErrNotEnoughDecoys
		}
		picked := *t
		decoys = append(decoys, picked)
		for i := range eligible {
			if eligible[i].ID == picked.ID {
				eligible = append(eligible[:i], eligible[i+1:]...)
				break
			}
		}
	}
	return decoys, nil
}

// SelectNextTrack 选出下一道题目：从 pool 抽取正确曲目，
// 从 decoyPool 装配打乱后的四个选项。干扰项不需要试听地址，
// 所以 decoyPool 通常比 pool 更宽。
// 同名候选多的曲目可能凑不够干扰项，此时换一首正确曲目
// 有限次重试，重试耗尽才报 ErrNotEnoughDecoys。
// 返回抽中的曲库曲目和构建好的题目文档（不含时间戳）。
func (s *Selector) SelectNextTrack(pool, decoyPool []model.CatalogTrack, used map[string]bool) (*model.CatalogTrack, *model.Track, error) {
	tried := make(map[string]bool, len(used))
	for id := range used {
		tried[id] = true
	}

	for attempt := 0; attempt < selectRetries; attempt++ {
		correct, err := s.PickWeightedTrack(pool, tried)
		if err != nil {
			return nil, nil, err
		}

		decoys, err := s.AssembleDecoys(correct, decoyPool)
		if errors.Is(err, ErrNotEnoughDecoys) {
			tried[correct.ID] = true
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		choices := make([]model.Choice, 0, decoyCount+1)
		choices = append(choices, correct.ToChoice())
		for i := range decoys {
			choices = append(choices, decoys[i].ToChoice())
		}
		s.shuffle(choices)

		track := &model.Track{
			CorrectID: correct.ID,
			Src:       correct.PreviewURL,
			Choices:   choices,
		}
		return correct, track, nil
	}
	return nil, nil, ErrNotEnoughDecoys
}

func (s *Selector) shuffle(choices []model.Choice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
}
