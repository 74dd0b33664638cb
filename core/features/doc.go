// Package features builds the fixed-width lagged feature vectors consumed by
// the ridership regressors.
//
// A vector holds LagDepth lag steps of NumBase base features: in_count,
// out_count, temperature, humidity, wind_speed, minutes (hour*100+minute of
// the time slot) and day_of_week (Monday=0). Columns are laid out lag-major:
// lag1_in_count, lag1_out_count, ..., lag1_day_of_week, lag2_in_count, ...
// The regressors were trained on this exact order; Column and ColumnName are
// the only places that encode it.
package features
