// Package factory provides a small generic registry used to instantiate
// pluggable modules (regressors, metrics sinks, publishers) from
// configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[inference.Regressor]()
//	reg.Register("linear", func(conf map[string]any) (inference.Regressor, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    a, err := regressor.LoadArtifact(c.Path)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return regressor.NewLinear(a)
//	})
//	r, err := reg.Create(factory.ModuleConfig{Type: "linear", Conf: map[string]any{"path": "in.yaml"}})
package factory
