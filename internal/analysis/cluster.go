package analysis

import (
	"errors"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"

	"github.com/JakeFAU/openrice-crawler/internal/dataset"
)

// Columns added by Cluster.
const (
	PriceLowerField = "price_lower"
	ClusterField    = "cluster"
)

// ClusterFeatures lists the clustered columns in order.
var ClusterFeatures = []string{"rating", "review_count", PriceLowerField}

const (
	defaultK        = 3
	defaultSeed     = 42
	defaultInits    = 10
	defaultMaxIters = 300
)

var firstDigits = regexp.MustCompile(`\d+`)

// ClusterConfig controls k-means.
type ClusterConfig struct {
	K        int
	Seed     uint64
	Inits    int
	MaxIters int
}

func (c ClusterConfig) withDefaults() ClusterConfig {
	if c.K <= 0 {
		c.K = defaultK
	}
	if c.Seed == 0 {
		c.Seed = defaultSeed
	}
	if c.Inits <= 0 {
		c.Inits = defaultInits
	}
	if c.MaxIters <= 0 {
		c.MaxIters = defaultMaxIters
	}
	return c
}

// ClusterStats holds the mean of each feature, in original units, per cluster.
type ClusterStats struct {
	Cluster         int     `json:"cluster"`
	Size            int     `json:"size"`
	MeanRating      float64 `json:"mean_rating"`
	MeanReviewCount float64 `json:"mean_review_count"`
	MeanPriceLower  float64 `json:"mean_price_lower"`
}

// PriceLower returns the first run of digits in a price band ("$201-400" is
// 201). Bands without digits map to 0.
func PriceLower(price string) float64 {
	m := firstDigits.FindString(price)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// Cluster labels rows with PriceLowerField and ClusterField. Features are
// standardized to zero mean and unit population variance before k-means++
// seeded runs; the run with the lowest inertia wins. Results are
// deterministic for a given seed.
func Cluster(rows []dataset.Row, cfg ClusterConfig) ([]dataset.Row, []ClusterStats, error) {
	cfg = cfg.withDefaults()
	if len(rows) == 0 {
		return nil, nil, errors.New("no rows to cluster")
	}
	raw := make([][]float64, len(rows))
	for i, row := range rows {
		raw[i] = []float64{
			dataset.ParseFloat(row.Get("rating")),
			float64(dataset.ParseInt(row.Get("review_count"))),
			PriceLower(row.Get("price")),
		}
	}
	scaled := standardize(raw)
	k := cfg.K
	if k > len(rows) {
		k = len(rows)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	var best []int
	bestInertia := math.Inf(1)
	for range cfg.Inits {
		labels, inertia := kmeans(scaled, k, cfg.MaxIters, rng)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	if best == nil {
		return nil, nil, errors.New("k-means did not converge to a finite inertia")
	}

	out := make([]dataset.Row, 0, len(rows))
	for i, row := range rows {
		labeled := cloneRow(row)
		labeled.Set(PriceLowerField, dataset.FormatFloat(raw[i][2]))
		labeled.Set(ClusterField, strconv.Itoa(best[i]))
		out = append(out, labeled)
	}
	return out, clusterStats(raw, best, k), nil
}

func standardize(points [][]float64) [][]float64 {
	dims := len(points[0])
	n := float64(len(points))
	mean := make([]float64, dims)
	std := make([]float64, dims)
	for _, p := range points {
		for d, v := range p {
			mean[d] += v
		}
	}
	for d := range mean {
		mean[d] /= n
	}
	for _, p := range points {
		for d, v := range p {
			diff := v - mean[d]
			std[d] += diff * diff
		}
	}
	for d := range std {
		std[d] = math.Sqrt(std[d] / n)
	}
	out := make([][]float64, len(points))
	for i, p := range points {
		out[i] = make([]float64, dims)
		for d, v := range p {
			// Constant features carry no signal and scale to zero.
			if std[d] == 0 {
				continue
			}
			out[i][d] = (v - mean[d]) / std[d]
		}
	}
	return out
}

func kmeans(points [][]float64, k, maxIters int, rng *rand.Rand) ([]int, float64) {
	centers := seedCenters(points, k, rng)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, p := range points {
			c, _ := nearest(p, centers)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		centers = recomputeCenters(points, labels, centers)
	}
	inertia := 0.0
	for i, p := range points {
		inertia += sqDist(p, centers[labels[i]])
	}
	return labels, inertia
}

// seedCenters picks initial centers with k-means++: each next center is drawn
// with probability proportional to its squared distance from the nearest
// chosen center.
func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clonePoint(points[rng.IntN(len(points))]))
	dist := make([]float64, len(points))
	for len(centers) < k {
		total := 0.0
		for i, p := range points {
			_, d := nearest(p, centers)
			dist[i] = d
			total += d
		}
		if total == 0 {
			centers = append(centers, clonePoint(points[rng.IntN(len(points))]))
			continue
		}
		target := rng.Float64() * total
		chosen := len(points) - 1
		for i, d := range dist {
			target -= d
			if target <= 0 {
				chosen = i
				break
			}
		}
		centers = append(centers, clonePoint(points[chosen]))
	}
	return centers
}

func recomputeCenters(points [][]float64, labels []int, prev [][]float64) [][]float64 {
	dims := len(points[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	for i, p := range points {
		c := labels[i]
		counts[c]++
		for d, v := range p {
			sums[c][d] += v
		}
	}
	for c := range sums {
		if counts[c] == 0 {
			// An emptied cluster keeps its previous center.
			sums[c] = clonePoint(prev[c])
			continue
		}
		for d := range sums[c] {
			sums[c][d] /= float64(counts[c])
		}
	}
	return sums
}

func clusterStats(raw [][]float64, labels []int, k int) []ClusterStats {
	stats := make([]ClusterStats, k)
	for c := range stats {
		stats[c].Cluster = c
	}
	for i, p := range raw {
		s := &stats[labels[i]]
		s.Size++
		s.MeanRating += p[0]
		s.MeanReviewCount += p[1]
		s.MeanPriceLower += p[2]
	}
	for c := range stats {
		if stats[c].Size == 0 {
			continue
		}
		n := float64(stats[c].Size)
		stats[c].MeanRating /= n
		stats[c].MeanReviewCount /= n
		stats[c].MeanPriceLower /= n
	}
	return stats
}

func nearest(p []float64, centers [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := sqDist(p, center); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func sqDist(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}
