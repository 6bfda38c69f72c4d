package fraud

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

const (
	maxSubsample = 256
	eulerGamma   = 0.5772156649015329
)

// isolationForest is an ensemble of random isolation trees. Anomalies are
// isolated in fewer splits, so shorter mean paths mean lower scores.
type isolationForest struct {
	trees      []*isolationNode
	sampleSize int
	// offset is the training score at the contamination quantile; inputs
	// scoring below it are anomalous.
	offset float64
}

type isolationNode struct {
	feature int
	split   float64
	left    *isolationNode
	right   *isolationNode
	size    int
}

func (n *isolationNode) leaf() bool {
	return n.left == nil
}

func fitIsolationForest(ctx context.Context, data []Vector, trees int, contamination float64, seed uint64) (*isolationForest, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("need at least 2 samples to fit, got %d", len(data))
	}
	if trees <= 0 {
		return nil, fmt.Errorf("tree count must be positive, got %d", trees)
	}

	sampleSize := min(maxSubsample, len(data))
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	master := rand.New(rand.NewPCG(seed, seed))
	seeds := make([]uint64, trees)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	forest := &isolationForest{
		trees:      make([]*isolationNode, trees),
		sampleSize: sampleSize,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, treeSeed := range seeds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := rand.New(rand.NewPCG(treeSeed, uint64(i)))
			sample := r.Perm(len(data))[:sampleSize]
			forest.trees[i] = growTree(data, sample, 0, maxDepth, r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("error growing isolation trees: %w", err)
	}

	scores := make([]float64, len(data))
	for i, v := range data {
		scores[i] = forest.score(v)
	}
	forest.offset = percentile(scores, contamination*100)

	return forest, nil
}

func growTree(data []Vector, sample []int, depth, maxDepth int, r *rand.Rand) *isolationNode {
	if depth >= maxDepth || len(sample) <= 1 {
		return &isolationNode{size: len(sample)}
	}

	var lows, highs Vector
	for f := range FeatureCount {
		lows[f], highs[f] = math.Inf(1), math.Inf(-1)
	}
	for _, idx := range sample {
		for f, x := range data[idx] {
			lows[f] = math.Min(lows[f], x)
			highs[f] = math.Max(highs[f], x)
		}
	}

	candidates := make([]int, 0, FeatureCount)
	for f := range FeatureCount {
		if highs[f] > lows[f] {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return &isolationNode{size: len(sample)}
	}

	feature := candidates[r.IntN(len(candidates))]
	split := lows[feature] + r.Float64()*(highs[feature]-lows[feature])

	var left, right []int
	for _, idx := range sample {
		if data[idx][feature] < split {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	return &isolationNode{
		feature: feature,
		split:   split,
		left:    growTree(data, left, depth+1, maxDepth, r),
		right:   growTree(data, right, depth+1, maxDepth, r),
		size:    len(sample),
	}
}

// score returns a value in [-1, 0); lower is more anomalous.
func (f *isolationForest) score(v Vector) float64 {
	var total float64
	for _, tree := range f.trees {
		total += pathLength(v, tree, 0)
	}
	mean := total / float64(len(f.trees))
	return -math.Pow(2, -mean/averagePathLength(f.sampleSize))
}

func (f *isolationForest) anomalous(score float64) bool {
	return score < f.offset
}

func pathLength(v Vector, node *isolationNode, depth int) float64 {
	for !node.leaf() {
		if v[node.feature] < node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(node.size)
}

// averagePathLength is the expected path length of an unsuccessful search in
// a binary search tree of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

func percentile(values []float64, p float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
