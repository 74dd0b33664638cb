package regressor

import (
	"github.com/YDUTSEVOLDN/Subway/core/factory"
	"github.com/YDUTSEVOLDN/Subway/core/inference"
)

func init() {
	_ = inference.RegisterRegressor("linear", func(conf map[string]any) (inference.Regressor, error) {
		var c struct {
			Path    string    `json:"path"`
			Name    string    `json:"name"`
			Width   int       `json:"width"`
			Bias    float64   `json:"bias"`
			Weights []float64 `json:"weights"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path != "" {
			a, err := LoadArtifact(c.Path)
			if err != nil {
				return nil, err
			}
			return NewLinear(a)
		}
		return NewLinear(Artifact{Name: c.Name, Width: c.Width, Bias: c.Bias, Weights: c.Weights})
	})

	_ = inference.RegisterRegressor("http", func(conf map[string]any) (inference.Regressor, error) {
		var c HTTPConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewHTTP(c)
	})
}
