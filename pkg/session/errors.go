package session

import "github.com/meshbridge/routeragent/pkg/util"

var errDeviceNotRegistered = util.NewAuthError("", "device not registered")
