// Package executors provides the built-in leaf executors.
package executors

import (
	"github.com/wehubfusion/Daedalus/pkg/engine"
)

// Implementation names understood by the built-in factory.
const (
	Settings  = "settings"
	Script    = "script"
	Constant  = "constant"
	Choose    = "choose"
	Condition = "condition"
	Strings   = "strings"
	JSONQuery = "jsonquery"
	Linear    = "linear"
)

// NewFactory creates a factory with every built-in executor registered.
func NewFactory() *engine.Factory {
	factory := engine.NewFactory()
	Register(factory)
	return factory
}

// Register adds the built-in executors to factory.
func Register(factory *engine.Factory) {
	factory.Register(Settings, newSettings)
	factory.Register(Script, newScript)
	factory.Register(Constant, newConstant)
	factory.Register(Choose, newChoose)
	factory.Register(Condition, newCondition)
	factory.Register(Strings, newStrings)
	factory.Register(JSONQuery, newJSONQuery)
	factory.Register(Linear, newLinear)
}
