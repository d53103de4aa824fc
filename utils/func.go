package utils

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// GoWithRecover runs handler in a goroutine. A panic is logged and handed to
// recoverHandler, itself guarded against panics.
func GoWithRecover(handler func(), recoverHandler func(r interface{})) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("goroutine panic: %v\n%s", r, debug.Stack())
				if recoverHandler != nil {
					go func() {
						defer func() {
							if p := recover(); p != nil {
								logrus.Errorf("recover goroutine panic: %v\n%s", p, debug.Stack())
							}
						}()
						recoverHandler(r)
					}()
				}
			}
		}()
		handler()
	}()
}
