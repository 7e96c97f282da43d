package anomaly

import (
	"math"
	"math/rand"
)

// pcaModel is a low-rank principal-component anomaly model. Rows are
// centered on the training mean and scored by combining the reconstruction
// residual (distance from the baseline subspace) with the
// variance-standardized distance inside the subspace, so a row far along a
// principal direction scores high even when the subspace reconstructs it
// perfectly.
type pcaModel struct {
	mean        []float64
	components  [][]float64 // rank x dims, orthonormal
	eigenvalues []float64   // variance along each component
}

const (
	powerIterations = 100
	eigenTolerance  = 1e-10
)

// fitPCA fits a rank-k model on the given matrix. Component extraction uses
// seeded power iteration with deflation over the covariance matrix, so
// identical input and seed always yield the identical model. Dimensionality
// here is small (6 or 12), which keeps the dense covariance cheap.
func fitPCA(rows [][]float64, rank int, seed int64) *pcaModel {
	n := len(rows)
	if n == 0 {
		return &pcaModel{}
	}
	dims := len(rows[0])
	if rank > dims {
		rank = dims
	}

	mean := make([]float64, dims)
	for _, row := range rows {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	centered := make([][]float64, n)
	for i, row := range rows {
		c := make([]float64, dims)
		for j, v := range row {
			c[j] = v - mean[j]
		}
		centered[i] = c
	}

	cov := make([][]float64, dims)
	for a := range cov {
		cov[a] = make([]float64, dims)
	}
	for _, row := range centered {
		for a := 0; a < dims; a++ {
			for b := a; b < dims; b++ {
				cov[a][b] += row[a] * row[b]
			}
		}
	}
	for a := 0; a < dims; a++ {
		for b := a; b < dims; b++ {
			cov[a][b] /= float64(n)
			cov[b][a] = cov[a][b]
		}
	}

	rng := rand.New(rand.NewSource(seed))
	components := make([][]float64, 0, rank)
	eigenvalues := make([]float64, 0, rank)
	for k := 0; k < rank; k++ {
		vec, eigenvalue := dominantEigenvector(cov, rng)
		if eigenvalue <= eigenTolerance {
			break
		}
		components = append(components, vec)
		eigenvalues = append(eigenvalues, eigenvalue)
		deflate(cov, vec, eigenvalue)
	}

	return &pcaModel{mean: mean, components: components, eigenvalues: eigenvalues}
}

// score returns the abnormality of one row against the fitted model: the
// reconstruction residual combined with the Hotelling distance along the
// retained components.
func (m *pcaModel) score(row []float64) float64 {
	if len(m.mean) == 0 || len(row) != len(m.mean) {
		return 0
	}
	dims := len(row)

	centered := make([]float64, dims)
	for j, v := range row {
		centered[j] = v - m.mean[j]
	}

	recon := make([]float64, dims)
	var hotelling float64
	for k, comp := range m.components {
		var coeff float64
		for j := range centered {
			coeff += comp[j] * centered[j]
		}
		for j := range recon {
			recon[j] += coeff * comp[j]
		}
		hotelling += coeff * coeff / m.eigenvalues[k]
	}

	var residual float64
	for j := range centered {
		d := centered[j] - recon[j]
		residual += d * d
	}
	return math.Sqrt(hotelling + residual)
}

// dominantEigenvector runs power iteration on a symmetric matrix.
func dominantEigenvector(m [][]float64, rng *rand.Rand) ([]float64, float64) {
	dims := len(m)
	vec := make([]float64, dims)
	for j := range vec {
		vec[j] = rng.NormFloat64()
	}
	normalize(vec)

	next := make([]float64, dims)
	var eigenvalue float64
	for iter := 0; iter < powerIterations; iter++ {
		for a := 0; a < dims; a++ {
			var s float64
			for b := 0; b < dims; b++ {
				s += m[a][b] * vec[b]
			}
			next[a] = s
		}
		eigenvalue = norm(next)
		if eigenvalue <= eigenTolerance {
			return vec, 0
		}
		for j := range next {
			next[j] /= eigenvalue
		}
		vec, next = next, vec
	}
	return vec, eigenvalue
}

// deflate removes the contribution of an extracted component so the next
// power iteration converges on the following eigenvector.
func deflate(m [][]float64, vec []float64, eigenvalue float64) {
	for a := range m {
		for b := range m[a] {
			m[a][b] -= eigenvalue * vec[a] * vec[b]
		}
	}
}

func norm(vec []float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func normalize(vec []float64) {
	n := norm(vec)
	if n == 0 {
		vec[0] = 1
		return
	}
	for j := range vec {
		vec[j] /= n
	}
}
