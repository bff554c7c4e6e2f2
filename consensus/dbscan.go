package consensus

import (
	"gonum.org/v1/gonum/mat"
)

// Noise is the label given to members that belong to no cluster.
const Noise = -1

const unvisited = -2

// Labeling is the result of one clustering run over a distance matrix.
type Labeling struct {
	// Labels holds one entry per member, Noise or a cluster index starting
	// at 0 in discovery order.
	Labels []int
	// Probabilities is the per-member membership strength (hdbscan only).
	Probabilities []float64
	// Persistence is the per-cluster stability score (hdbscan only).
	Persistence []float64
}

// Clusters returns the number of clusters in the labeling.
func (l Labeling) Clusters() int {
	n := 0
	for _, lab := range l.Labels {
		if lab+1 > n {
			n = lab + 1
		}
	}
	return n
}

// Members returns the member indices of cluster label in input order.
func (l Labeling) Members(label int) []int {
	var idx []int
	for i, lab := range l.Labels {
		if lab == label {
			idx = append(idx, i)
		}
	}
	return idx
}

// allNoise labels n members as noise.
func allNoise(n int) Labeling {
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	return Labeling{Labels: labels}
}

// Clusterer is a density clustering backend over a precomputed distance
// matrix.
type Clusterer interface {
	// MinMembers is the smallest group the backend will cluster. Smaller
	// groups are reported as all noise.
	MinMembers() int
	Cluster(dist *mat.SymDense) Labeling
}

// DBSCAN groups members that have at least MinSamples neighbours (itself
// included) within Eps.
type DBSCAN struct {
	Eps        float64
	MinSamples int
}

func (c DBSCAN) MinMembers() int { return max(1, c.MinSamples) }

func (c DBSCAN) Cluster(dist *mat.SymDense) Labeling {
	if dist == nil {
		return Labeling{}
	}
	n := dist.SymmetricDim()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		neighbors := c.regionQuery(dist, i)
		if len(neighbors) < c.MinSamples {
			labels[i] = Noise
			continue
		}
		c.expandCluster(dist, labels, i, neighbors, cluster)
		cluster++
	}
	return Labeling{Labels: labels}
}

// expandCluster grows a cluster outward from a core member. Members first
// marked as noise are claimed as border members.
func (c DBSCAN) expandCluster(dist *mat.SymDense, labels []int, seed int, neighbors []int, cluster int) {
	labels[seed] = cluster
	queue := append([]int(nil), neighbors...)
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		if labels[j] == Noise {
			labels[j] = cluster
		}
		if labels[j] != unvisited {
			continue
		}
		labels[j] = cluster
		more := c.regionQuery(dist, j)
		if len(more) >= c.MinSamples {
			queue = append(queue, more...)
		}
	}
}

// regionQuery returns every member within Eps of i, i included.
func (c DBSCAN) regionQuery(dist *mat.SymDense, i int) []int {
	n := dist.SymmetricDim()
	var out []int
	for j := 0; j < n; j++ {
		if dist.At(i, j) <= c.Eps {
			out = append(out, j)
		}
	}
	return out
}
