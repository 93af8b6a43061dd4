// Package autoload initialises the global logger from LOG_* variables when
// imported.
package autoload

import (
	configx "github.com/tanpawarit/food-delivery-assistant/pkg/config"
	logx "github.com/tanpawarit/food-delivery-assistant/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*conf)
}
