package fitness

type Opts struct {
	// MinStrainReads is the minimum summed time-zero count for a strain
	// to be scored in a condition.
	MinStrainReads int
	// MinGeneReads is the minimum summed time-zero count, over a gene's
	// surviving strains, for the gene to be scored in a condition.
	MinGeneReads int

	// CentralMin and CentralMax bound the portion of a gene's length
	// within which an insertion is considered reliable. Insertions
	// outside [begin+CentralMin*len, begin+CentralMax*len) are dropped.
	CentralMin float64
	CentralMax float64

	// WeightCapReads sets the ceiling on inverse-variance strain
	// weights: no strain can weigh more than one with WeightCapReads
	// reads in both the sample and the reference.
	WeightCapReads int

	// WindowRadius is the number of neighboring genes on each side used
	// for the local median in positional normalization. The window
	// covers 2*WindowRadius+1 ordinal positions and wraps circularly.
	WindowRadius int

	// LinearScaffolds names scaffolds whose windows truncate at the
	// ends instead of wrapping. All other scaffolds are treated as
	// circular replicons.
	LinearScaffolds map[string]bool

	// KDEPoints and KDECut control the density grid used for mode
	// centering: KDEPoints equally spaced evaluation points covering
	// [min-KDECut*h, max+KDECut*h] where h is the nrd0 bandwidth.
	// These, together with the bandwidth rule in bandwidthNRD0, are
	// part of the output contract: changing them changes results.
	KDEPoints int
	KDECut    float64

	// MinSideReads is the minimum summed time-zero count on each side
	// of a gene's midpoint for the gene to enter the prior-variance
	// (mad12) estimate.
	MinSideReads int

	// VarianceFloor is added in quadrature to the variance under the
	// t statistic.
	VarianceFloor float64
	// TThreshold is the |t| cutoff for the significance call.
	TThreshold float64
}

var DefaultOpts = Opts{
	MinStrainReads: 3,
	MinGeneReads:   30,
	CentralMin:     0.1,
	CentralMax:     0.9,
	WeightCapReads: 20,
	WindowRadius:   125,
	KDEPoints:      512,
	KDECut:         3,
	MinSideReads:   15,
	VarianceFloor:  0.1,
	TThreshold:     4,
}
