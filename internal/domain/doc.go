// Package domain models county-level wastewater surveillance series and the
// reproduction number estimates derived from them.
//
// # Data Source
//
// Measurements come from the SCAN wastewater program (published through the
// Verily public health CSV feed) and, for a handful of Central Valley cities
// in 2021-2022, from Eurofins. The builder (see package builder) keeps the
// treatment plant with the largest population served in each county and
// writes one row per county and calendar day:
//
//	Date,County,SC2_N_norm_PMMoV,Cases_N
//	2022-01-03,Yolo,0.00031,412000
//
// Empty cells are missing measurements. The estimation stage reads one
// numeric column from that table (Cases_N by default).
//
// # Series Preparation
//
// [PrepareSeries] turns a county's raw rows into a daily series:
//
//	1. rows sharing a calendar day are averaged
//	2. the series is resampled to every day between the first and last row
//	3. zeros are replaced with half the smallest non-zero value
//	4. internal gaps are linearly interpolated over calendar days
//	5. values are multiplied by the scale factor kk and rounded half to even
//
// Leading and trailing gaps are never extrapolated; they stay NaN and no
// estimate is produced for those days.
//
// The scale factor converts a continuous concentration into a pseudo-count
// that a discrete renewal-equation method accepts. Its default of 4 is an
// empirical calibration, so it is configurable (SCALE_FACTOR).
//
// # Estimates
//
// An [Estimate] carries the posterior median Rt and the 2.5% / 97.5%
// quantiles. [MergeBack] scatters an engine's output back onto a county's
// calendar and [Assemble] builds the long-format [CombinedResult] that is
// published: sorted by (County, Date), no duplicates, only complete rows.
package domain
