package consensus

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// minLambdaDistance keeps lambda finite for coincident members.
const minLambdaDistance = 1e-12

// HDBSCAN builds a hierarchy from mutual reachability distances and keeps
// the clusters with the most excess of mass. MinSamples defaults to
// MinClusterSize when zero.
type HDBSCAN struct {
	MinClusterSize int
	MinSamples     int
}

func (c HDBSCAN) MinMembers() int { return max(2, c.MinClusterSize) }

func (c HDBSCAN) minSamples() int {
	if c.MinSamples > 0 {
		return c.MinSamples
	}
	return c.MinClusterSize
}

type mstEdge struct {
	a, b int
	dist float64
}

// linkNode is an internal node of the single-linkage dendrogram.
type linkNode struct {
	left, right int
	dist        float64
	size        int
}

// condensedRow records a point or cluster leaving its parent cluster.
type condensedRow struct {
	parent, child int
	lambda        float64
	size          int
}

func (c HDBSCAN) Cluster(dist *mat.SymDense) Labeling {
	if dist == nil {
		return Labeling{}
	}
	n := dist.SymmetricDim()
	if n < c.MinMembers() {
		return allNoise(n)
	}
	edges := mutualReachabilityTree(dist, coreDistances(dist, c.minSamples()))
	tree := singleLinkage(n, edges)
	rows, next := condenseTree(n, tree, max(2, c.MinClusterSize))
	stability := clusterStability(n, next, rows)
	selected := selectClusters(n, next, rows, stability)
	return labelMembers(n, next, rows, stability, selected)
}

// coreDistances is the distance to the k-th nearest member, counting the
// member itself as the first.
func coreDistances(dist *mat.SymDense, k int) []float64 {
	n := dist.SymmetricDim()
	k = min(max(k, 1), n)
	core := make([]float64, n)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			row[j] = dist.At(i, j)
		}
		sort.Float64s(row)
		core[i] = row[k-1]
	}
	return core
}

// mutualReachabilityTree returns the minimum spanning tree of the mutual
// reachability graph using Prim's algorithm.
func mutualReachabilityTree(dist *mat.SymDense, core []float64) []mstEdge {
	n := len(core)
	reach := func(i, j int) float64 {
		return math.Max(dist.At(i, j), math.Max(core[i], core[j]))
	}
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	inTree[0] = true
	for j := 1; j < n; j++ {
		best[j] = reach(0, j)
	}
	edges := make([]mstEdge, 0, n-1)
	for len(edges) < n-1 {
		v := -1
		for j := 0; j < n; j++ {
			if !inTree[j] && (v < 0 || best[j] < best[v]) {
				v = j
			}
		}
		inTree[v] = true
		edges = append(edges, mstEdge{a: from[v], b: v, dist: best[v]})
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if d := reach(v, j); d < best[j] {
				best[j], from[j] = d, v
			}
		}
	}
	return edges
}

// singleLinkage merges MST edges in increasing order. Node n+k is the k-th
// merge.
func singleLinkage(n int, edges []mstEdge) []linkNode {
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].dist < edges[j].dist })
	uf := newUnionFind(2*n - 1)
	size := make([]int, 2*n-1)
	for i := 0; i < n; i++ {
		size[i] = 1
	}
	tree := make([]linkNode, 0, n-1)
	for _, e := range edges {
		ra, rb := uf.find(e.a), uf.find(e.b)
		node := n + len(tree)
		size[node] = size[ra] + size[rb]
		tree = append(tree, linkNode{left: ra, right: rb, dist: e.dist, size: size[node]})
		uf.join(ra, rb, node)
	}
	return tree
}

func lambdaOf(d float64) float64 {
	if math.IsInf(d, 1) {
		return 0
	}
	return 1 / math.Max(d, minLambdaDistance)
}

// condenseTree walks the dendrogram from the root and keeps only splits
// where both sides hold at least minSize members. Cluster ids start at n
// (the root); next is one past the highest id.
func condenseTree(n int, tree []linkNode, minSize int) (rows []condensedRow, next int) {
	root := n + len(tree) - 1
	sizeOf := func(node int) int {
		if node < n {
			return 1
		}
		return tree[node-n].size
	}
	relabel := make([]int, root+1)
	relabel[root] = n
	next = n + 1
	ignore := make([]bool, root+1)

	leaves := func(node int) []int {
		var out []int
		stack := []int{node}
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if v < n {
				out = append(out, v)
				continue
			}
			ignore[v] = true
			stack = append(stack, tree[v-n].left, tree[v-n].right)
		}
		return out
	}
	fallOut := func(parent, node int, lambda float64) {
		for _, leaf := range leaves(node) {
			rows = append(rows, condensedRow{parent: parent, child: leaf, lambda: lambda, size: 1})
		}
	}

	for _, node := range hierarchyOrder(n, tree, root) {
		if node < n || ignore[node] {
			continue
		}
		link := tree[node-n]
		lambda := lambdaOf(link.dist)
		lc, rc := sizeOf(link.left), sizeOf(link.right)
		parent := relabel[node]
		switch {
		case lc >= minSize && rc >= minSize:
			relabel[link.left] = next
			rows = append(rows, condensedRow{parent: parent, child: next, lambda: lambda, size: lc})
			next++
			relabel[link.right] = next
			rows = append(rows, condensedRow{parent: parent, child: next, lambda: lambda, size: rc})
			next++
		case lc < minSize && rc < minSize:
			fallOut(parent, link.left, lambda)
			fallOut(parent, link.right, lambda)
		case lc < minSize:
			relabel[link.right] = parent
			fallOut(parent, link.left, lambda)
		default:
			relabel[link.left] = parent
			fallOut(parent, link.right, lambda)
		}
	}
	return rows, next
}

// hierarchyOrder lists dendrogram nodes breadth first from root.
func hierarchyOrder(n int, tree []linkNode, root int) []int {
	order := []int{root}
	for k := 0; k < len(order); k++ {
		if v := order[k]; v >= n {
			order = append(order, tree[v-n].left, tree[v-n].right)
		}
	}
	return order
}

// clusterStability sums (lambda - lambda_birth) * size over each cluster's
// departing children.
func clusterStability(n, next int, rows []condensedRow) []float64 {
	birth := make([]float64, next)
	for _, r := range rows {
		if r.child >= n {
			birth[r.child] = r.lambda
		}
	}
	stability := make([]float64, next)
	for _, r := range rows {
		stability[r.parent] += (r.lambda - birth[r.parent]) * float64(r.size)
	}
	return stability
}

// selectClusters applies excess-of-mass selection bottom up. The root is
// never selected.
func selectClusters(n, next int, rows []condensedRow, stability []float64) []bool {
	children := make([][]int, next)
	for _, r := range rows {
		if r.child >= n {
			children[r.parent] = append(children[r.parent], r.child)
		}
	}
	score := append([]float64(nil), stability...)
	selected := make([]bool, next)
	for c := next - 1; c > n; c-- {
		selected[c] = true
	}
	for c := next - 1; c > n; c-- {
		sub := 0.0
		for _, ch := range children[c] {
			sub += score[ch]
		}
		if len(children[c]) > 0 && sub > score[c] {
			selected[c] = false
			score[c] = sub
			continue
		}
		stack := append([]int(nil), children[c]...)
		for len(stack) > 0 {
			d := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			selected[d] = false
			stack = append(stack, children[d]...)
		}
	}
	return selected
}

// labelMembers assigns each member to its nearest selected ancestor and
// derives membership probabilities and cluster persistence.
func labelMembers(n, next int, rows []condensedRow, stability []float64, selected []bool) Labeling {
	parentOf := make([]int, next)
	for i := range parentOf {
		parentOf[i] = -1
	}
	pointLambda := make([]float64, n)
	for _, r := range rows {
		parentOf[r.child] = r.parent
		if r.child < n {
			pointLambda[r.child] = r.lambda
		}
	}

	labelOf := make(map[int]int)
	var ids []int
	for c := n + 1; c < next; c++ {
		if selected[c] {
			labelOf[c] = len(ids)
			ids = append(ids, c)
		}
	}

	// deepest lambda reached anywhere below each cluster
	death := make([]float64, next)
	maxLambda := 0.0
	for _, r := range rows {
		lam := r.lambda
		maxLambda = math.Max(maxLambda, lam)
		for c := r.parent; c >= 0; c = parentOf[c] {
			if lam <= death[c] {
				break
			}
			death[c] = lam
		}
	}

	out := Labeling{
		Labels:        make([]int, n),
		Probabilities: make([]float64, n),
		Persistence:   make([]float64, len(ids)),
	}
	sizes := make([]int, len(ids))
	for i := 0; i < n; i++ {
		out.Labels[i] = Noise
		for c := parentOf[i]; c >= n; c = parentOf[c] {
			if lab, ok := labelOf[c]; ok {
				out.Labels[i] = lab
				sizes[lab]++
				d := death[c]
				if d == 0 || math.IsInf(d, 1) {
					out.Probabilities[i] = 1
				} else {
					out.Probabilities[i] = math.Min(pointLambda[i], d) / d
				}
				break
			}
		}
	}
	for lab, c := range ids {
		if maxLambda == 0 || math.IsInf(maxLambda, 1) || sizes[lab] == 0 {
			out.Persistence[lab] = 1
			continue
		}
		out.Persistence[lab] = stability[c] / (float64(sizes[lab]) * maxLambda)
	}
	return out
}

// unionFind tracks merged components by parent links.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// join hangs roots ra and rb under the new root node.
func (uf *unionFind) join(ra, rb, node int) {
	uf.parent[ra] = node
	uf.parent[rb] = node
}
