package filter

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/stream"
)

const filterPrompt = `请判断下面的文档片段与用户问题是否相关。

要求：
1. 先给出判断：相关 或 无关
2. 再给出 0-100 的相关性分数，格式为 SCORE: 分数

用户问题：%s

文档片段：
%s`

var (
	scorePattern     = regexp.MustCompile(`SCORE\s*:\s*(\d{1,3})`)
	scoreJSONPattern = regexp.MustCompile(`\{\s*"score"\s*:\s*(\d{1,3})\s*\}`)
)

// Default lane geometry.
const (
	DefaultMaxLanes      = 3
	DefaultChunksPerLane = 3
)

// Options configure a Filter.
type Options struct {
	MaxLanes      int
	ChunksPerLane int
	Observer      core.Observer
	Logger        logging.Logger
}

// Filter runs relevance judgment over chunk batches. The model factory is
// invoked once per lane so concurrent lanes never share a client.
type Filter struct {
	factory model.Factory
	opts    Options
}

// New creates a filter backed by the model factory. A nil factory disables
// filtering: every chunk passes through unjudged.
func New(factory model.Factory, optFns ...func(o *Options)) *Filter {
	opts := Options{
		MaxLanes:      DefaultMaxLanes,
		ChunksPerLane: DefaultChunksPerLane,
		Observer:      core.NopObserver{},
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxLanes < 1 {
		opts.MaxLanes = 1
	}
	if opts.ChunksPerLane < 1 {
		opts.ChunksPerLane = 1
	}
	return &Filter{factory: factory, opts: opts}
}

// Filter returns the relevant chunk texts sorted by score descending.
func (f *Filter) Filter(ctx context.Context, chunks []string, query, category string) []string {
	scores := f.Scores(ctx, chunks, query, category)

	relevant := make([]string, 0, len(scores))
	for _, s := range scores {
		if s.Relevant {
			relevant = append(relevant, s.Chunk)
		}
	}
	return relevant
}

// Scores judges every chunk and returns the full tally, relevant first by
// descending score. Each input chunk appears exactly once.
func (f *Filter) Scores(ctx context.Context, chunks []string, query, category string) []core.ChunkScore {
	if len(chunks) == 0 {
		f.emit(func() { f.opts.Observer.FilterComplete(0, 0, 0, category) })
		return nil
	}
	if f.factory == nil {
		f.opts.Logger.Warn("Filter model not configured, passing all chunks through")
		return passthrough(chunks)
	}

	f.emit(func() { f.opts.Observer.FilterStart(len(chunks), query, category) })

	batches := partition(chunks, f.opts.MaxLanes, f.opts.ChunksPerLane)
	results := make([][]core.ChunkScore, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(lane int, batch []string) {
			defer wg.Done()
			results[lane] = f.runLane(ctx, lane+1, batch, query, category)
		}(i, batch)
	}
	wg.Wait()

	var all []core.ChunkScore
	for _, laneScores := range results {
		all = append(all, laneScores...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Relevant != all[j].Relevant {
			return all[i].Relevant
		}
		return all[i].Score > all[j].Score
	})

	relevantCount := 0
	for _, s := range all {
		if s.Relevant {
			relevantCount++
		}
	}
	f.emit(func() {
		f.opts.Observer.FilterComplete(len(chunks), relevantCount, len(chunks)-relevantCount, category)
	})
	return all
}

// runLane processes one batch strictly sequentially on a dedicated client. A
// lane-level panic keeps every chunk of the batch with a neutral score.
func (f *Filter) runLane(ctx context.Context, lane int, batch []string, query, category string) (scores []core.ChunkScore) {
	defer func() {
		if r := recover(); r != nil {
			f.opts.Logger.Error("Filter lane panicked, keeping its chunks", "lane", lane, "panic", fmt.Sprint(r))
			scores = passthroughNeutral(batch)
		}
	}()

	client := f.factory()
	scores = make([]core.ChunkScore, 0, len(batch))
	for idx, chunk := range batch {
		score := f.scoreChunk(ctx, client, lane, idx, chunk, query, category)
		scores = append(scores, score)
	}
	return scores
}

func (f *Filter) scoreChunk(ctx context.Context, client model.Model, lane, idx int, chunk, query, category string) core.ChunkScore {
	raw, err := client.Complete(ctx, fmt.Sprintf(filterPrompt, query, chunk))
	if err != nil {
		// Recall over precision: a failed judgment keeps the chunk.
		f.opts.Logger.Warn("Filter model call failed, keeping chunk", "lane", lane, "chunk", idx, "error", err)
		f.emit(func() { f.opts.Observer.FilterProgress(lane, idx, chunk, true, "", category, 50) })
		return core.ChunkScore{Chunk: chunk, Relevant: true, Score: 50}
	}

	answer := stream.ExtractAnswer(stream.ExtractFinalContent(raw))
	thinking := stream.ExtractThinking(raw)

	relevant := strings.Contains(answer, "相关") && !strings.Contains(answer, "无关")
	score := parseScore(answer, relevant)

	f.emit(func() { f.opts.Observer.FilterProgress(lane, idx, chunk, relevant, thinking, category, score) })
	return core.ChunkScore{Chunk: chunk, Relevant: relevant, Score: score}
}

// parseScore extracts "SCORE: nn" or {"score": nn}, defaulting by verdict
// and clamping to [0, 100].
func parseScore(answer string, relevant bool) int {
	score := -1
	if m := scorePattern.FindStringSubmatch(answer); m != nil {
		score, _ = strconv.Atoi(m[1])
	} else if m := scoreJSONPattern.FindStringSubmatch(answer); m != nil {
		score, _ = strconv.Atoi(m[1])
	}
	if score < 0 {
		if relevant {
			return 80
		}
		return 20
	}
	if score > 100 {
		return 100
	}
	return score
}

// partition splits chunks evenly across min(maxLanes, ceil(n/perLane))
// lanes, the remainder going to the first lanes.
func partition(chunks []string, maxLanes, perLane int) [][]string {
	total := len(chunks)
	lanes := (total + perLane - 1) / perLane
	if lanes > maxLanes {
		lanes = maxLanes
	}
	if lanes <= 1 {
		return [][]string{chunks}
	}

	base := total / lanes
	remainder := total % lanes

	batches := make([][]string, 0, lanes)
	start := 0
	for i := 0; i < lanes; i++ {
		size := base
		if i < remainder {
			size++
		}
		if start >= total {
			break
		}
		batches = append(batches, chunks[start:start+size])
		start += size
	}
	return batches
}

// emit runs one observer callback, recovering panics so a faulty observer
// never aborts filtering.
func (f *Filter) emit(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			f.opts.Logger.Warn("Observer callback panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

func passthrough(chunks []string) []core.ChunkScore {
	scores := make([]core.ChunkScore, len(chunks))
	for i, c := range chunks {
		scores[i] = core.ChunkScore{Chunk: c, Relevant: true, Score: 80}
	}
	return scores
}

func passthroughNeutral(chunks []string) []core.ChunkScore {
	scores := make([]core.ChunkScore, len(chunks))
	for i, c := range chunks {
		scores[i] = core.ChunkScore{Chunk: c, Relevant: true, Score: 50}
	}
	return scores
}
