package spc

// ComputeControlLimits derives X-bar and R chart limits from subgroup
// statistics. Invalid (empty) subgroups are skipped. The constants must
// come from LookupConstants; an unknown N fails with ErrInvalidSubgroupSize.
func ComputeControlLimits(stats []SubgroupStat, constants ChartConstants) (ControlLimits, error) {
	if _, err := LookupConstants(constants.N); err != nil {
		return ControlLimits{}, err
	}

	var sumMean, sumRange float64
	valid := 0
	for _, s := range stats {
		if !s.Valid {
			continue
		}
		sumMean += s.Mean
		sumRange += s.Range
		valid++
	}
	if valid == 0 {
		return ControlLimits{}, ErrNoMeasurements
	}

	grandMean := sumMean / float64(valid)
	meanRange := sumRange / float64(valid)

	return ControlLimits{
		N:         constants.N,
		GrandMean: grandMean,
		MeanRange: meanRange,
		XBar: ChartLimits{
			Center: grandMean,
			Lower:  grandMean - constants.A2*meanRange,
			Upper:  grandMean + constants.A2*meanRange,
		},
		R: ChartLimits{
			Center: meanRange,
			Lower:  constants.D3 * meanRange,
			Upper:  constants.D4 * meanRange,
		},
		Constants: constants,
	}, nil
}
