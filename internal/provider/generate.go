package provider

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"mutamap/core-go/internal/record"
)

// Geographic hotspots the generator scatters points around so the map view
// has recognizable population centers instead of uniform noise.
var hotspots = [][2]float64{
	{40.71, -74.00},  // New York
	{51.50, -0.12},   // London
	{35.68, 139.69},  // Tokyo
	{-23.55, -46.63}, // Sao Paulo
	{28.61, 77.20},   // Delhi
	{-33.86, 151.20}, // Sydney
	{6.52, 3.37},     // Lagos
}

var genes = []string{"TP53", "BRCA1", "BRCA2", "KRAS", "EGFR", "BRAF", "PTEN", "MYC", "APC", "RB1"}

var mutationTypes = []string{"missense", "nonsense", "silent", "frameshift", "insertion", "deletion"}

// GenerateRandom produces count synthetic records. Indices start at
// ReservedIndexFloor so they never collide with real sources. Scatter-space
// coordinates are drawn around a handful of cluster centroids so the plot
// shows loose groupings rather than a uniform cloud.
func (p *Provider) GenerateRandom(count int) Dataset {
	if count <= 0 {
		count = p.generateCount
	}

	nClusters := 3 + rand.Intn(4)
	centroids := make([][2]float64, nClusters)
	for i := range centroids {
		centroids[i] = [2]float64{rand.Float64()*20 - 10, rand.Float64()*20 - 10}
	}

	recs := make([]record.Record, count)
	for i := range recs {
		c := centroids[rand.Intn(nClusters)]
		h := hotspots[rand.Intn(len(hotspots))]
		recs[i] = record.Record{
			Index:         ReservedIndexFloor + i,
			Latitude:      clamp(h[0]+rand.NormFloat64()*3, -90, 90),
			Longitude:     clamp(h[1]+rand.NormFloat64()*3, -180, 180),
			X:             c[0] + rand.NormFloat64()*1.5,
			Y:             c[1] + rand.NormFloat64()*1.5,
			MutationValue: rand.Float64(),
			Extra: map[string]any{
				"gene":          genes[rand.Intn(len(genes))],
				"mutation_type": mutationTypes[rand.Intn(len(mutationTypes))],
				"sample":        fmt.Sprintf("SYN-%04d", i),
			},
		}
	}

	p.metrics.ObserveIngestion(string(ProvenanceGenerated), count, 0)

	return Dataset{
		ID:         uuid.New(),
		Provenance: ProvenanceGenerated,
		Records:    recs,
		Dropped:    0,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
