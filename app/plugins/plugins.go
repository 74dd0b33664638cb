// Package plugins links the built-in module implementations into the binary.
// Importing it registers the regressors, metrics sinks and publishers that
// configuration can refer to by type name.
package plugins

import (
	"github.com/YDUTSEVOLDN/Subway/core/inference"
	coremetrics "github.com/YDUTSEVOLDN/Subway/core/metrics"
	"github.com/YDUTSEVOLDN/Subway/core/publish"

	_ "github.com/YDUTSEVOLDN/Subway/infra/metrics"
	_ "github.com/YDUTSEVOLDN/Subway/infra/publish"
	_ "github.com/YDUTSEVOLDN/Subway/infra/regressor"
)

// Available returns the registered type names per module kind.
func Available() map[string][]string {
	return map[string][]string{
		"regressor": inference.RegressorTypes(),
		"metrics":   coremetrics.SinkTypes(),
		"publisher": publish.Types(),
	}
}
