// Package kmeans implements the Lloyd's-algorithm k-means fit used by
// the Learning Assembler (spec §4.F) to derive season cluster centers
// from concatenated reanalysis/observation PC features. Grounded on
// the teacher's DBSCAN clustering engine shape (random-restart search,
// stable tie-break, structured logging) generalized from density-based
// to partition-based clustering.
package kmeans

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
)

// Config configures a k-means fit.
type Config struct {
	K         int // number of clusters (partitions)
	Restarts  int // number of independent random restarts
	MaxIters  int // safety bound per restart
	Seed      uint64
}

// Result is the centroid set and point-to-cluster assignment of the
// best-of-restarts solution.
type Result struct {
	Centroids [][]float64
	Assign    []int
	Inertia   float64
}

// Fit runs Config.Restarts independent random restarts of Lloyd's
// algorithm over points, each started from K random initial centroids,
// and keeps the solution minimizing within-cluster inertia. Stable
// tie-break by lowest centroid index on equal distance. Fails with
// DegenerateClustering if any single restart converged in exactly one
// iteration (spec §4.F): its first centroid update left every seed
// centroid where it was and the reassignment after it changed nothing.
func Fit(points [][]float64, cfg Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := len(points)
	if n == 0 {
		return nil, dsclimerr.DimensionMismatch("kmeans: no points")
	}
	if cfg.K <= 0 || cfg.K > n {
		return nil, dsclimerr.Configuration("kmeans: invalid K=%d for %d points", cfg.K, n)
	}
	restarts := cfg.Restarts
	if restarts <= 0 {
		restarts = 1
	}
	maxIters := cfg.MaxIters
	if maxIters <= 0 {
		maxIters = 100
	}
	dim := len(points[0])

	var best *Result
	for r := 0; r < restarts; r++ {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(r)))
		centroids := initCentroids(points, cfg.K, dim, rng)
		seeds := make([][]float64, cfg.K)
		for c := range centroids {
			seeds[c] = append([]float64(nil), centroids[c]...)
		}

		assign := make([]int, n)
		assignPoints(points, centroids, assign)

		iters := 0
		for iters < maxIters {
			updateCentroids(points, assign, centroids, dim)
			iters++

			next := make([]int, n)
			assignPoints(points, centroids, next)
			changed := !sameAssignment(assign, next)
			assign = next
			if !changed {
				break
			}
		}

		moved := false
		for c := range centroids {
			moved = moved || squaredDistance(seeds[c], centroids[c]) > 0
		}
		if iters == 1 && !moved {
			return nil, dsclimerr.DegenerateClustering("kmeans restart %d converged in a single iteration (K=%d, n=%d)", r, cfg.K, n)
		}

		inertia := computeInertia(points, centroids, assign)
		if best == nil || inertia < best.Inertia {
			best = &Result{Centroids: centroids, Assign: append([]int(nil), assign...), Inertia: inertia}
		}

		logger.Debug("kmeans restart completed",
			"restart", r, "iterations", iters, "inertia", inertia)
	}

	return best, nil
}

func initCentroids(points [][]float64, k, dim int, rng *rand.Rand) [][]float64 {
	n := len(points)
	idx := rng.Perm(n)[:k]
	centroids := make([][]float64, k)
	for i, p := range idx {
		c := make([]float64, dim)
		copy(c, points[p])
		centroids[i] = c
	}
	return centroids
}

// assignPoints assigns every point to its nearest centroid into out,
// ties broken by lowest centroid index.
func assignPoints(points [][]float64, centroids [][]float64, out []int) {
	for i, p := range points {
		best := 0
		bestD := math.Inf(1)
		for c, centroid := range centroids {
			d := squaredDistance(p, centroid)
			if d < bestD {
				bestD = d
				best = c
			}
		}
		out[i] = best
	}
}

func sameAssignment(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func updateCentroids(points [][]float64, assign []int, centroids [][]float64, dim int) {
	k := len(centroids)
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := 0; c < k; c++ {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		c := assign[i]
		counts[c]++
		for d := 0; d < dim; d++ {
			sums[c][d] += p[d]
		}
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue // keep previous centroid for an emptied cluster
		}
		for d := 0; d < dim; d++ {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

func computeInertia(points [][]float64, centroids [][]float64, assign []int) float64 {
	var total float64
	for i, p := range points {
		total += squaredDistance(p, centroids[assign[i]])
	}
	return total
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
